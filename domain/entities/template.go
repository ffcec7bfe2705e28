package entities

import "time"

// Template holds the subject, HTML and text templates a digest is rendered with
type Template struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	SubjectTemplate string    `db:"subject_template"`
	HTMLTemplate    string    `db:"html_template"`
	TextTemplate    string    `db:"text_template"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// RenderedMessage is a template rendered against an event batch
type RenderedMessage struct {
	Subject string
	HTML    string
	Text    string
}

// EmailTag is a provider-side label attached to a message
type EmailTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EmailMessage is one message handed to the email provider
type EmailMessage struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
	Tags    []EmailTag
}
