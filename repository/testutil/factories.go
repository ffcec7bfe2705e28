package testutil

import (
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"

	"github.com/google/uuid"
)

// CreateTestTemplate creates a template with minimal subject and bodies
func CreateTestTemplate() *entities.Template {
	return &entities.Template{
		ID:              uuid.NewString(),
		Name:            "Daily activity",
		SubjectTemplate: "{{.Count}} new events",
		HTMLTemplate:    "<ul>{{range .Events}}<li>{{.EventType}}</li>{{end}}</ul>",
		TextTemplate:    "{{range .Events}}- {{.EventType}}\n{{end}}",
	}
}

// CreateTestDigest creates an active daily digest using the template
func CreateTestDigest(templateID string) *entities.Digest {
	maxAge := 48.0
	return &entities.Digest{
		ID:             uuid.NewString(),
		OwnerAccountID: "acc-1",
		Name:           "Shares",
		Description:    "Files shared with the team",
		Filters: entities.EventFilters{
			AccountIDs:  []string{"acc-1"},
			EventTypes:  []string{"file.share"},
			MaxAgeHours: &maxAge,
			FieldFilters: []entities.FieldFilter{
				{Path: "data.file.type", Operator: entities.OperatorEquals, Value: "pdf"},
			},
		},
		Schedule:       entities.Schedule{Type: entities.ScheduleDaily, DailyTime: "08:30"},
		Recipients:     []string{"ops@example.test", "lead@example.test"},
		TestRecipients: []string{"qa@example.test"},
		TemplateID:     templateID,
		IsActive:       true,
	}
}

// CreateTestRun creates a processing run of the digest
func CreateTestRun(digestID string, runType entities.RunType) *entities.Run {
	return &entities.Run{
		ID:       uuid.NewString(),
		DigestID: digestID,
		RunAt:    time.Now().UTC().Truncate(time.Millisecond),
		RunType:  runType,
		Status:   entities.RunStatusProcessing,
	}
}
