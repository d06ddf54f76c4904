package db

import (
	"context"
	"testing"
	"time"

	"github.com/mailwise/mailwise/internal/models"
	"github.com/mailwise/mailwise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndListReceivedMessages(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	acc := createTestAccount(t, ctx, pool, "inbox@example.com", 10)

	older := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	newer := older.Add(2 * time.Hour)

	first := &models.ReceivedMessage{
		AccountID:   acc.ID,
		FromAddress: "alice@example.com",
		ToAddress:   "inbox@example.com",
		Subject:     "Re: your application",
		BodyText:    "Thanks for applying.",
		Date:        &older,
		RawHeaders:  map[string][]string{"Message-Id": {"<1@example.com>"}},
		Attachments: []models.ReceivedAttachment{
			{Filename: "offer.pdf", MimeType: "application/pdf", SizeBytes: 1024},
		},
	}
	if err := SaveReceivedMessage(ctx, pool, first); err != nil {
		t.Fatalf("SaveReceivedMessage failed: %v", err)
	}
	require.NotEmpty(t, first.ID)

	second := &models.ReceivedMessage{
		AccountID: acc.ID,
		Subject:   "Interview invitation",
		Date:      &newer,
	}
	if err := SaveReceivedMessage(ctx, pool, second); err != nil {
		t.Fatalf("SaveReceivedMessage failed: %v", err)
	}

	messages, err := ListReceivedMessages(ctx, pool, acc.ID, 10)
	if err != nil {
		t.Fatalf("ListReceivedMessages failed: %v", err)
	}
	require.Len(t, messages, 2)

	// Newest first.
	assert.Equal(t, "Interview invitation", messages[0].Subject)
	assert.Equal(t, "Re: your application", messages[1].Subject)
	require.Len(t, messages[1].Attachments, 1)
	assert.Equal(t, "offer.pdf", messages[1].Attachments[0].Filename)
	assert.Equal(t, []string{"<1@example.com>"}, messages[1].RawHeaders["Message-Id"])

	count, err := CountReceivedMessages(ctx, pool, acc.ID)
	if err != nil {
		t.Fatalf("CountReceivedMessages failed: %v", err)
	}
	assert.Equal(t, 2, count)
}

func TestReceivedMessageExists(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	acc := createTestAccount(t, ctx, pool, "inbox@example.com", 10)
	other := createTestAccount(t, ctx, pool, "other@example.com", 10)

	date := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msg := &models.ReceivedMessage{
		AccountID: acc.ID,
		Subject:   "Re: your application",
		Date:      &date,
	}
	if err := SaveReceivedMessage(ctx, pool, msg); err != nil {
		t.Fatalf("SaveReceivedMessage failed: %v", err)
	}

	tests := []struct {
		name     string
		msg      *models.ReceivedMessage
		expected bool
	}{
		{
			name:     "same account, subject, and date",
			msg:      &models.ReceivedMessage{AccountID: acc.ID, Subject: "Re: your application", Date: &date},
			expected: true,
		},
		{
			name: "different date",
			msg: func() *models.ReceivedMessage {
				d := date.Add(time.Minute)
				return &models.ReceivedMessage{AccountID: acc.ID, Subject: "Re: your application", Date: &d}
			}(),
			expected: false,
		},
		{
			name:     "different subject",
			msg:      &models.ReceivedMessage{AccountID: acc.ID, Subject: "Something else", Date: &date},
			expected: false,
		},
		{
			name:     "different account",
			msg:      &models.ReceivedMessage{AccountID: other.ID, Subject: "Re: your application", Date: &date},
			expected: false,
		},
		{
			name:     "nil date does not match a dated message",
			msg:      &models.ReceivedMessage{AccountID: acc.ID, Subject: "Re: your application"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exists, err := ReceivedMessageExists(ctx, pool, tt.msg)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, exists)
		})
	}
}

func TestReceivedMessageExistsNilDate(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	acc := createTestAccount(t, ctx, pool, "inbox@example.com", 10)

	msg := &models.ReceivedMessage{AccountID: acc.ID, Subject: "No date header"}
	if err := SaveReceivedMessage(ctx, pool, msg); err != nil {
		t.Fatalf("SaveReceivedMessage failed: %v", err)
	}

	// Two dateless messages with the same subject are considered duplicates.
	exists, err := ReceivedMessageExists(ctx, pool, &models.ReceivedMessage{AccountID: acc.ID, Subject: "No date header"})
	if err != nil {
		t.Fatalf("ReceivedMessageExists failed: %v", err)
	}
	assert.True(t, exists)
}
