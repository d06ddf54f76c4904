package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mailwise/mailwise/internal/models"
	"github.com/mailwise/mailwise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetAccount(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	acc := &models.MailAccount{
		Username:              "login@example.com",
		FromAddress:           "sender@example.com",
		SMTPHost:              "smtp.example.com",
		SMTPPort:              465,
		EncryptedPassword:     []byte("encrypted-smtp"),
		DailyLimit:            50,
		Active:                true,
		IMAPHost:              "imap.example.com",
		IMAPPort:              993,
		IMAPUsername:          "inbox@example.com",
		EncryptedIMAPPassword: []byte("encrypted-imap"),
	}
	if err := CreateAccount(ctx, pool, acc); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	require.NotEmpty(t, acc.ID)

	got, err := GetAccount(ctx, pool, acc.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	assert.Equal(t, "login@example.com", got.Username)
	assert.Equal(t, "sender@example.com", got.FromAddress)
	assert.Equal(t, []byte("encrypted-smtp"), got.EncryptedPassword)
	assert.Equal(t, 50, got.DailyLimit)
	assert.Equal(t, 0, got.SentToday)
	assert.Nil(t, got.LastSentDate)
	assert.True(t, got.HasInbox())
	assert.Equal(t, "inbox@example.com", got.IMAPLogin())

	_, err = GetAccount(ctx, pool, "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}

func TestUpdateAccountLeavesQuotaAlone(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	acc := createTestAccount(t, ctx, pool, "sender@example.com", 10)

	// Simulate a send so the quota counters are non-zero.
	if err := RecordSend(ctx, pool, acc.ID, time.Now()); err != nil {
		t.Fatalf("RecordSend failed: %v", err)
	}

	acc.FromAddress = "renamed@example.com"
	acc.DailyLimit = 25
	if err := UpdateAccount(ctx, pool, acc); err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}

	got, err := GetAccount(ctx, pool, acc.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	assert.Equal(t, "renamed@example.com", got.FromAddress)
	assert.Equal(t, 25, got.DailyLimit)
	// The send counter survives the management update.
	assert.Equal(t, 1, got.SentToday)
}

func TestUpdateAccountPasswords(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	acc := createTestAccount(t, ctx, pool, "sender@example.com", 10)

	if err := UpdateAccountPassword(ctx, pool, acc.ID, []byte("new-smtp")); err != nil {
		t.Fatalf("UpdateAccountPassword failed: %v", err)
	}
	if err := UpdateAccountIMAPPassword(ctx, pool, acc.ID, []byte("new-imap")); err != nil {
		t.Fatalf("UpdateAccountIMAPPassword failed: %v", err)
	}

	got, err := GetAccount(ctx, pool, acc.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	assert.Equal(t, []byte("new-smtp"), got.EncryptedPassword)
	assert.Equal(t, []byte("new-imap"), got.EncryptedIMAPPassword)

	err = UpdateAccountPassword(ctx, pool, "00000000-0000-0000-0000-000000000000", []byte("x"))
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}

func TestListActiveAccounts(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	active := createTestAccount(t, ctx, pool, "active@example.com", 10)

	inactive := createTestAccount(t, ctx, pool, "inactive@example.com", 10)
	inactive.Active = false
	if err := UpdateAccount(ctx, pool, inactive); err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}

	all, err := ListAccounts(ctx, pool)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	assert.Len(t, all, 2)

	actives, err := ListActiveAccounts(ctx, pool)
	if err != nil {
		t.Fatalf("ListActiveAccounts failed: %v", err)
	}
	require.Len(t, actives, 1)
	assert.Equal(t, active.ID, actives[0].ID)
}

func TestDeleteAccount(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	acc := createTestAccount(t, ctx, pool, "sender@example.com", 10)

	if err := DeleteAccount(ctx, pool, acc.ID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}

	_, err := GetAccount(ctx, pool, acc.ID)
	assert.True(t, errors.Is(err, ErrAccountNotFound))

	err = DeleteAccount(ctx, pool, acc.ID)
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}

func TestDeleteAccountWithHistoryFails(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	acc := createTestAccount(t, ctx, pool, "sender@example.com", 10)

	rec := &models.DeliveryRecord{
		AccountID:   acc.ID,
		FromAddress: acc.FromAddress,
		Recipient:   "target@example.com",
		Status:      models.QueueStatusSent,
		SentAt:      time.Now(),
	}
	if err := SaveDeliveryRecord(ctx, pool, rec); err != nil {
		t.Fatalf("SaveDeliveryRecord failed: %v", err)
	}

	// Delivery history references the account.
	err := DeleteAccount(ctx, pool, acc.ID)
	assert.Error(t, err)
}

func TestResetIfStale(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	acc := createTestAccount(t, ctx, pool, "sender@example.com", 10)

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)

	// Record sends dated yesterday.
	if err := RecordSend(ctx, pool, acc.ID, yesterday.Add(10*time.Hour)); err != nil {
		t.Fatalf("RecordSend failed: %v", err)
	}
	if err := RecordSend(ctx, pool, acc.ID, yesterday.Add(11*time.Hour)); err != nil {
		t.Fatalf("RecordSend failed: %v", err)
	}

	// Yesterday's counter is stale relative to today and gets zeroed.
	fresh, err := ResetIfStale(ctx, pool, acc.ID, today)
	if err != nil {
		t.Fatalf("ResetIfStale failed: %v", err)
	}
	assert.Equal(t, 0, fresh.SentToday)

	// A send today, then another reset with the same day boundary: no-op.
	if err := RecordSend(ctx, pool, acc.ID, today.Add(9*time.Hour)); err != nil {
		t.Fatalf("RecordSend failed: %v", err)
	}

	fresh, err = ResetIfStale(ctx, pool, acc.ID, today)
	if err != nil {
		t.Fatalf("second ResetIfStale failed: %v", err)
	}
	assert.Equal(t, 1, fresh.SentToday)

	_, err = ResetIfStale(ctx, pool, "00000000-0000-0000-0000-000000000000", today)
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}

func TestRecordSendEnforcesLimit(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	acc := createTestAccount(t, ctx, pool, "sender@example.com", 2)

	now := time.Now()
	if err := RecordSend(ctx, pool, acc.ID, now); err != nil {
		t.Fatalf("first RecordSend failed: %v", err)
	}
	if err := RecordSend(ctx, pool, acc.ID, now); err != nil {
		t.Fatalf("second RecordSend failed: %v", err)
	}

	err := RecordSend(ctx, pool, acc.ID, now)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	got, err := GetAccount(ctx, pool, acc.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	assert.Equal(t, 2, got.SentToday)
	require.NotNil(t, got.LastSentDate)

	err = RecordSend(ctx, pool, "00000000-0000-0000-0000-000000000000", now)
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}

func TestRecordSendConcurrent(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	const limit = 5
	acc := createTestAccount(t, ctx, pool, "sender@example.com", limit)

	const attempts = 12
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = RecordSend(ctx, pool, acc.ID, time.Now())
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("unexpected RecordSend error: %v", err)
		}
	}
	assert.Equal(t, limit, succeeded)

	got, err := GetAccount(ctx, pool, acc.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	// The counter never overshoots the limit under concurrency.
	assert.Equal(t, limit, got.SentToday)
}
