package smtp

import (
	"strings"
	"testing"

	"github.com/mailwise/mailwise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSend(t *testing.T) {
	server := testutil.NewTestSMTPServer(t)
	defer server.Close()

	client := NewClient()

	creds := Credentials{
		Address:  server.Address,
		Username: server.Username(),
		Password: server.Password(),
		UseTLS:   false,
	}

	msg := &Message{
		From:    "sender@example.com",
		To:      "recipient@example.com",
		Subject: "Test",
		Text:    "Hello over the wire.",
	}

	if err := client.Send(creds, msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	messages := server.GetMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "sender@example.com", messages[0].From)
	assert.Equal(t, []string{"recipient@example.com"}, messages[0].To)
	assert.Contains(t, string(messages[0].Data), "Hello over the wire.")
}

func TestClientSendMultiple(t *testing.T) {
	server := testutil.NewTestSMTPServer(t)
	defer server.Close()

	client := NewClient()
	creds := Credentials{
		Address:  server.Address,
		Username: server.Username(),
		Password: server.Password(),
	}

	recipients := []string{"a@example.com", "b@example.com"}
	for _, to := range recipients {
		msg := &Message{
			From:    "sender@example.com",
			To:      to,
			Subject: "Test",
			Text:    "Body for " + to,
		}
		if err := client.Send(creds, msg); err != nil {
			t.Fatalf("Send to %s failed: %v", to, err)
		}
	}

	messages := server.GetMessages()
	require.Len(t, messages, 2)
	for i, to := range recipients {
		assert.Equal(t, []string{to}, messages[i].To)
		assert.True(t, strings.Contains(string(messages[i].Data), "Body for "+to))
	}
}

func TestClientSendConnectionRefused(t *testing.T) {
	client := NewClient()

	creds := Credentials{
		Address:  "127.0.0.1:1", // nothing listens here
		Username: "user",
		Password: "pass",
	}

	err := client.Send(creds, &Message{From: "a@example.com", To: "b@example.com"})
	assert.Error(t, err)
}
