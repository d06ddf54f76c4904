package models

import "time"

// Queue item lifecycle states.
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusSent       = "sent"
	QueueStatusError      = "error"
)

// Person is the payload a queue item carries for body rendering. All fields are
// optional; Extra holds the original imported row verbatim.
type Person struct {
	FirstName            string            `json:"first_name,omitempty"`
	LastName             string            `json:"last_name,omitempty"`
	Title                string            `json:"title,omitempty"`
	Company              string            `json:"company,omitempty"`
	CompanyNameForEmails string            `json:"company_name_for_emails,omitempty"`
	Seniority            string            `json:"seniority,omitempty"`
	Industry             string            `json:"industry,omitempty"`
	LinkedinURL          string            `json:"linkedin_url,omitempty"`
	City                 string            `json:"city,omitempty"`
	Country              string            `json:"country,omitempty"`
	Website              string            `json:"website,omitempty"`
	Extra                map[string]string `json:"extra,omitempty"`
}

// DisplayName returns the person's name for the greeting line. Falls back to the
// recipient-facing company name when no name fields are set.
func (p *Person) DisplayName() string {
	name := p.FirstName
	if p.LastName != "" {
		if name != "" {
			name += " "
		}
		name += p.LastName
	}
	if name == "" {
		name = p.CompanyName()
	}
	return name
}

// CompanyName returns the company name meant for emails, falling back to the
// plain company field.
func (p *Person) CompanyName() string {
	if p.CompanyNameForEmails != "" {
		return p.CompanyNameForEmails
	}
	return p.Company
}

// QueueItem is one outbound message candidate.
type QueueItem struct {
	ID           string     `json:"id"`
	Recipient    string     `json:"recipient"`
	Person       Person     `json:"person"`
	Status       string     `json:"status"`
	IsSend       bool       `json:"is_send"`
	IsProcessing bool       `json:"is_processing"`
	AccountID    *string    `json:"account_id,omitempty"`
	ErrorDetail  *string    `json:"error_detail,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

// MailAccount is one sending/receiving identity. FromAddress is the canonical
// sender identity; Username is used for authentication only.
type MailAccount struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	FromAddress  string     `json:"from_address"`
	SMTPHost     string     `json:"smtp_host"`
	SMTPPort     int        `json:"smtp_port"`
	DailyLimit   int        `json:"daily_limit"`
	SentToday    int        `json:"sent_today"`
	LastSentDate *time.Time `json:"last_sent_date,omitempty"`
	Active       bool       `json:"active"`
	IMAPHost     string     `json:"imap_host,omitempty"`
	IMAPPort     int        `json:"imap_port,omitempty"`
	IMAPUsername string     `json:"imap_username,omitempty"`

	// Encrypted credentials; never serialized.
	EncryptedPassword     []byte `json:"-"`
	EncryptedIMAPPassword []byte `json:"-"`
}

// HasInbox reports whether the account has inbound credentials configured.
func (a *MailAccount) HasInbox() bool {
	return a.IMAPHost != "" && len(a.EncryptedIMAPPassword) > 0
}

// IMAPLogin returns the login user for the inbound mailbox, falling back to the
// outbound username when no separate one is configured.
func (a *MailAccount) IMAPLogin() string {
	if a.IMAPUsername != "" {
		return a.IMAPUsername
	}
	return a.Username
}

// DeliveryRecord is one terminal outbound attempt outcome. Append-only.
type DeliveryRecord struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	FromAddress string    `json:"from_address"`
	Recipient   string    `json:"recipient"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	Company     string    `json:"company,omitempty"`
	Status      string    `json:"status"`
	Attachments []string  `json:"attachments,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// ReceivedMessage is one ingested inbound message. Uniqueness is defined by
// (AccountID, Subject, Date).
type ReceivedMessage struct {
	ID          string               `json:"id"`
	AccountID   string               `json:"account_id"`
	FromAddress string               `json:"from_address"`
	ToAddress   string               `json:"to_address"`
	Subject     string               `json:"subject"`
	BodyText    string               `json:"body_text"`
	Date        *time.Time           `json:"date,omitempty"`
	RawHeaders  map[string][]string  `json:"raw_headers,omitempty"`
	Attachments []ReceivedAttachment `json:"attachments,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// ReceivedAttachment is attachment metadata for an ingested message. Content is
// not stored.
type ReceivedAttachment struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}
