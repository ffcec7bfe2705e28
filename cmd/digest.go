package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/admin"
	"github.com/phumblot-gs/gs-stream-digest-sub000/application"

	"github.com/spf13/cobra"
)

// NewRunCommand executes a manual run of a digest
func NewRunCommand(opts *RootOptions) *cobra.Command {
	var triggeredBy, format string

	cmd := &cobra.Command{
		Use:   "run <digest-id>",
		Short: "Run a digest now and advance its watermark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			result, runErr := app.Scheduler.RunDigestNow(cmd.Context(), args[0], optionalFlag(triggeredBy))
			if result != nil {
				if err := printResult(cmd.OutOrStdout(), format, result); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "operator recorded on the run")
	cmd.Flags().StringVar(&format, "format", "text", "output format (json|text)")
	return cmd
}

// NewTestCommand sends a digest to a test recipient without moving its watermark
func NewTestCommand(opts *RootOptions) *cobra.Command {
	var triggeredBy, email, format string
	var preview bool

	cmd := &cobra.Command{
		Use:   "test <digest-id>",
		Short: "Send a test run of a digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if preview && email == "" {
				return fmt.Errorf("--preview requires --email")
			}

			app, err := NewApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if preview {
				messageID, err := app.Processor.SendTest(cmd.Context(), args[0], email)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Preview sent to %s (message %s)\n", email, messageID)
				return nil
			}

			result, runErr := app.Scheduler.RunTestNow(cmd.Context(), args[0], email, optionalFlag(triggeredBy))
			if result != nil {
				if err := printResult(cmd.OutOrStdout(), format, result); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "recipient, defaults to the digest's test recipients")
	cmd.Flags().BoolVar(&preview, "preview", false, "send the latest events without recording a run")
	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "operator recorded on the run")
	cmd.Flags().StringVar(&format, "format", "text", "output format (json|text)")
	return cmd
}

// NewHistoryCommand lists the recent runs of a digest
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "history <digest-id>",
		Short: "List recent runs of a digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > 500 {
				return fmt.Errorf("limit must be between 1 and 500")
			}

			app, err := NewApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			runs, err := app.Runs.ListByDigest(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			summaries := make([]admin.RunSummary, 0, len(runs))
			for _, run := range runs {
				summaries = append(summaries, admin.Summarize(run))
			}
			return printRuns(cmd.OutOrStdout(), format, summaries)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	cmd.Flags().StringVar(&format, "format", "text", "output format (json|text)")
	return cmd
}

func printResult(w io.Writer, format string, result *application.ProcessResult) error {
	if format == "json" {
		view := map[string]interface{}{
			"skipped":       result.Skipped,
			"eventsFetched": result.EventsFetched,
		}
		if result.SkipReason != "" {
			view["skipReason"] = result.SkipReason
		}
		if result.Run != nil {
			view["run"] = admin.Summarize(result.Run)
		}
		return writeJSON(w, view)
	}
	if format != "text" {
		return fmt.Errorf("invalid format %q: must be one of %v", format, ValidLogFormats)
	}

	if result.Skipped {
		fmt.Fprintf(w, "Skipped: %s\n", result.SkipReason)
		return nil
	}
	if result.Run == nil {
		return nil
	}
	return printRuns(w, format, []admin.RunSummary{admin.Summarize(result.Run)})
}

func printRuns(w io.Writer, format string, runs []admin.RunSummary) error {
	switch format {
	case "json":
		return writeJSON(w, runs)
	case "text":
	default:
		return fmt.Errorf("invalid format %q: must be one of %v", format, ValidLogFormats)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tTYPE\tSTATUS\tRUN AT\tEVENTS\tSENT\tFAILED\tERROR")
	for _, run := range runs {
		errMsg := ""
		if run.Error != nil {
			errMsg = *run.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.ID,
			run.RunType,
			run.Status,
			run.RunAt.UTC().Format(time.RFC3339),
			run.EventsCount,
			run.EmailsSent,
			run.EmailsFailed,
			errMsg,
		)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalFlag(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
