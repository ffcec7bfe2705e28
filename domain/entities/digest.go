package entities

import (
	"time"
)

// Digest is a named, scheduled subscription that turns matching events into a periodic email
type Digest struct {
	ID               string       `db:"id"`
	OwnerAccountID   string       `db:"owner_account_id"`
	Name             string       `db:"name"`
	Description      string       `db:"description"`
	Filters          EventFilters `db:"filters"`
	Schedule         Schedule     `db:"schedule"`
	Recipients       []string     `db:"recipients"`
	TestRecipients   []string     `db:"test_recipients"`
	TemplateID       string       `db:"template_id"`
	IsActive         bool         `db:"is_active"`
	IsPaused         bool         `db:"is_paused"`
	LastEventUID     *string      `db:"last_event_uid"`    // NULL until the first non-empty run
	LastCheckAt      *time.Time   `db:"last_check_at"`     // NULL until the first run
	WatermarkVersion int64        `db:"watermark_version"` // Bumped on every watermark write
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

// IsSchedulable returns true if the digest should hold a live timer
func (d *Digest) IsSchedulable() bool {
	return d.IsActive && !d.IsPaused
}

// WindowStart returns the timestamp events are fetched from.
// A digest that never ran looks back over the given window.
func (d *Digest) WindowStart(now time.Time, lookback time.Duration) time.Time {
	if d.LastCheckAt != nil {
		return *d.LastCheckAt
	}
	return now.Add(-lookback)
}

// CronExpression returns the cron expression the digest is scheduled with
func (d *Digest) CronExpression() string {
	return d.Schedule.CronExpression()
}

// WatermarkUpdate moves a digest's watermark forward
type WatermarkUpdate struct {
	LastEventUID    *string // nil keeps the stored uid
	LastCheckAt     time.Time
	ExpectedVersion int64
}

// DigestMeta is the digest context handed to templates
type DigestMeta struct {
	DigestID    string
	DigestName  string
	Description string
	AccountID   string
	RunID       string
	RunType     RunType
	PeriodStart time.Time
	PeriodEnd   time.Time
}
