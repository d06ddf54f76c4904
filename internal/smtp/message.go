package smtp

import (
	"bytes"
	"fmt"

	"github.com/jhillyerd/enmime"
)

// Attachment is one file attached to an outbound message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one outbound email ready for transport.
type Message struct {
	FromName    string
	From        string
	To          string
	Subject     string
	Text        string
	Attachments []Attachment
}

// Encode builds the MIME representation of the message.
func (m *Message) Encode() ([]byte, error) {
	builder := enmime.Builder().
		From(m.FromName, m.From).
		To("", m.To).
		Subject(m.Subject).
		Text([]byte(m.Text))

	for _, att := range m.Attachments {
		builder = builder.AddAttachment(att.Content, att.ContentType, att.Filename)
	}

	part, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build MIME message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode MIME message: %w", err)
	}

	return buf.Bytes(), nil
}
