package ingest

import (
	"fmt"
	"io"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"
	"github.com/mailwise/mailwise/internal/models"
)

// parseMessage converts a fetched IMAP message to a ReceivedMessage owned by
// the given account. The envelope date becomes the dedup key's original date.
func parseMessage(imapMsg *imap.Message, accountID string) (*models.ReceivedMessage, error) {
	if imapMsg == nil {
		return nil, fmt.Errorf("imap message is nil")
	}

	msg := &models.ReceivedMessage{
		AccountID: accountID,
	}

	if imapMsg.Envelope != nil {
		msg.Subject = imapMsg.Envelope.Subject
		if len(imapMsg.Envelope.From) > 0 {
			msg.FromAddress = formatAddress(imapMsg.Envelope.From[0])
		}
		if len(imapMsg.Envelope.To) > 0 {
			msg.ToAddress = formatAddress(imapMsg.Envelope.To[0])
		}
		if !imapMsg.Envelope.Date.IsZero() {
			date := imapMsg.Envelope.Date
			msg.Date = &date
		}
	}

	section := &imap.BodySectionName{}
	if bodyReader := imapMsg.GetBody(section); bodyReader != nil {
		// An unparseable body is not fatal; the envelope fields stand on their own.
		_ = parseBody(bodyReader, msg)
	}

	return msg, nil
}

// parseBody parses the message body using enmime.
func parseBody(bodyReader io.Reader, msg *models.ReceivedMessage) error {
	envelope, err := enmime.ReadEnvelope(bodyReader)
	if err != nil {
		return fmt.Errorf("failed to parse message body: %w", err)
	}

	msg.BodyText = envelope.Text

	if envelope.Root != nil && envelope.Root.Header != nil {
		msg.RawHeaders = envelope.Root.Header
	}

	for _, part := range envelope.Attachments {
		msg.Attachments = append(msg.Attachments, models.ReceivedAttachment{
			Filename:  part.FileName,
			MimeType:  part.ContentType,
			SizeBytes: int64(len(part.Content)),
		})
	}

	return nil
}

// formatAddress formats an IMAP address to a string.
func formatAddress(address *imap.Address) string {
	if address == nil {
		return ""
	}

	if address.MailboxName == "" && address.HostName == "" {
		return ""
	}

	if address.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", address.PersonalName, address.MailboxName, address.HostName)
	}

	return fmt.Sprintf("%s@%s", address.MailboxName, address.HostName)
}
