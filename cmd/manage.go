package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// DigestDefinition is the file accepted by the create command. Template is
// optional when the digest points at an existing templateId.
type DigestDefinition struct {
	Template *TemplateDefinition `json:"template,omitempty"`
	Digest   DigestFields        `json:"digest"`
}

// TemplateDefinition is a template created together with its digest
type TemplateDefinition struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// DigestFields are the editable digest columns
type DigestFields struct {
	ID             string                `json:"id,omitempty"`
	OwnerAccountID string                `json:"ownerAccountId"`
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	Filters        entities.EventFilters `json:"filters"`
	Schedule       entities.Schedule     `json:"schedule"`
	Recipients     []string              `json:"recipients"`
	TestRecipients []string              `json:"testRecipients"`
	TemplateID     string                `json:"templateId,omitempty"`
	Paused         bool                  `json:"paused"`
}

// ParseDigestDefinition decodes and validates a definition, assigning ids
// where none are given. The returned template is nil when none is embedded.
func ParseDigestDefinition(r io.Reader) (*entities.Digest, *entities.Template, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var def DigestDefinition
	if err := dec.Decode(&def); err != nil {
		return nil, nil, fmt.Errorf("failed to decode digest definition: %w", err)
	}

	var tmpl *entities.Template
	if def.Template != nil {
		if strings.TrimSpace(def.Template.Name) == "" || strings.TrimSpace(def.Template.Subject) == "" {
			return nil, nil, fmt.Errorf("template name and subject are required")
		}
		if def.Template.HTML == "" && def.Template.Text == "" {
			return nil, nil, fmt.Errorf("template needs an html or text body")
		}
		tmpl = &entities.Template{
			ID:              def.Template.ID,
			Name:            def.Template.Name,
			SubjectTemplate: def.Template.Subject,
			HTMLTemplate:    def.Template.HTML,
			TextTemplate:    def.Template.Text,
		}
		if tmpl.ID == "" {
			tmpl.ID = uuid.NewString()
		}
		if def.Digest.TemplateID != "" && def.Digest.TemplateID != tmpl.ID {
			return nil, nil, fmt.Errorf("templateId %s does not match the embedded template %s", def.Digest.TemplateID, tmpl.ID)
		}
		def.Digest.TemplateID = tmpl.ID
	}

	fields := def.Digest
	if strings.TrimSpace(fields.Name) == "" {
		return nil, nil, fmt.Errorf("digest name is required")
	}
	if fields.TemplateID == "" {
		return nil, nil, fmt.Errorf("digest needs a templateId or an embedded template")
	}
	if len(fields.Recipients) == 0 {
		return nil, nil, entities.ErrNoRecipients
	}
	if fields.Schedule.Type == entities.ScheduleCustom {
		if _, err := cron.ParseStandard(fields.Schedule.Custom); err != nil {
			return nil, nil, fmt.Errorf("invalid cron expression %q: %w", fields.Schedule.Custom, err)
		}
	}

	digest := &entities.Digest{
		ID:             fields.ID,
		OwnerAccountID: fields.OwnerAccountID,
		Name:           fields.Name,
		Description:    fields.Description,
		Filters:        fields.Filters,
		Schedule:       fields.Schedule,
		Recipients:     fields.Recipients,
		TestRecipients: fields.TestRecipients,
		TemplateID:     fields.TemplateID,
		IsActive:       true,
		IsPaused:       fields.Paused,
	}
	if digest.ID == "" {
		digest.ID = uuid.NewString()
	}
	return digest, tmpl, nil
}

// NewCreateCommand stores a digest, and optionally its template, in one transaction
func NewCreateCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a digest from a JSON definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", file, err)
				}
				defer f.Close()
				in = f
			}

			digest, tmpl, err := ParseDigestDefinition(in)
			if err != nil {
				return err
			}

			app, err := NewApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			err = app.DB.WithTransaction(ctx, func(tx pgx.Tx) error {
				if tmpl != nil {
					if err := repository.NewTemplateRepository(tx).Create(ctx, tmpl); err != nil {
						return err
					}
				}
				return repository.NewDigestRepository(tx).Create(ctx, digest)
			})
			if err != nil {
				return err
			}

			log.WithFields(log.Fields{
				"digest_id":   digest.ID,
				"template_id": digest.TemplateID,
			}).Info("Digest created")

			if err := app.Control.Created(ctx, digest.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "definition file, - reads stdin")
	return cmd
}

// NewPauseCommand stops scheduled runs of a digest
func NewPauseCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <digest-id>",
		Short: "Pause a digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Control.Pause(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Digest %s paused\n", args[0])
			return nil
		},
	}
}

// NewResumeCommand re-enables scheduled runs of a digest
func NewResumeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <digest-id>",
		Short: "Resume a paused digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Control.Resume(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Digest %s resumed\n", args[0])
			return nil
		},
	}
}
