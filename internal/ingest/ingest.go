package ingest

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailwise/mailwise/internal/config"
	"github.com/mailwise/mailwise/internal/crypto"
	"github.com/mailwise/mailwise/internal/db"
	"github.com/mailwise/mailwise/internal/models"
	ws "github.com/mailwise/mailwise/internal/websocket"
)

// Ingestor fetches unseen inbound mail for every active account with inbound
// credentials, deduplicates against the received-mail store, and persists the
// rest. A failure on one account never aborts the remaining accounts.
type Ingestor struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
	hub       *ws.Hub

	window int
	useTLS bool
}

// Summary aggregates one ingestion run. Per-account detail is not reported;
// callers needing it must run accounts individually.
type Summary struct {
	Accounts int `json:"accounts"`
	Saved    int `json:"saved"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// New creates an Ingestor. hub may be nil.
func New(pool *pgxpool.Pool, encryptor *crypto.Encryptor, hub *ws.Hub, cfg *config.Config) *Ingestor {
	return &Ingestor{
		pool:      pool,
		encryptor: encryptor,
		hub:       hub,
		window:    cfg.IngestWindow,
		useTLS:    cfg.IMAPUseTLS,
	}
}

// FetchAllInboxes runs one ingestion pass over every active account with
// inbound credentials configured. Returns an error only for infrastructure
// faults (e.g., the store being unreachable).
func (ing *Ingestor) FetchAllInboxes(ctx context.Context) (*Summary, error) {
	accounts, err := db.ListActiveAccounts(ctx, ing.pool)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, account := range accounts {
		if !account.HasInbox() {
			continue
		}
		summary.Accounts++

		saved, skipped, err := ing.FetchInbox(ctx, account)
		summary.Saved += saved
		summary.Skipped += skipped
		if err != nil {
			// Record and move on to the next account.
			summary.Failed++
			log.Printf("ingest: failed to fetch inbox for %s: %v", account.FromAddress, err)
		}
	}

	log.Printf("ingest: %d accounts, %d saved, %d duplicates skipped, %d failed",
		summary.Accounts, summary.Saved, summary.Skipped, summary.Failed)
	ing.hub.Broadcast(ws.Event{Type: "ingest_run", Data: summary})
	return summary, nil
}

// FetchInbox fetches one account's INBOX: connect, login, select, bounded
// unseen fetch, dedup, persist. Logout runs on every exit path.
func (ing *Ingestor) FetchInbox(ctx context.Context, account *models.MailAccount) (saved, skipped int, err error) {
	password, err := ing.encryptor.Decrypt(account.EncryptedIMAPPassword)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decrypt IMAP credentials: %w", err)
	}

	address := net.JoinHostPort(account.IMAPHost, strconv.Itoa(account.IMAPPort))
	c, err := connect(address, ing.useTLS)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if logoutErr := c.Logout(); logoutErr != nil {
			log.Printf("ingest: logout failed for %s: %v", account.FromAddress, logoutErr)
		}
	}()

	if err := login(c, account.IMAPLogin(), password); err != nil {
		return 0, 0, err
	}

	if _, err := c.Select("INBOX", false); err != nil {
		return 0, 0, fmt.Errorf("failed to select INBOX: %w", err)
	}

	uids, err := searchUnseen(c, ing.window)
	if err != nil {
		return 0, 0, err
	}

	messages, err := fetchMessages(c, uids)
	if err != nil {
		return 0, 0, err
	}

	for _, imapMsg := range messages {
		msg, err := parseMessage(imapMsg, account.ID)
		if err != nil {
			log.Printf("ingest: failed to parse message UID %d for %s: %v", imapMsg.Uid, account.FromAddress, err)
			continue
		}

		exists, err := db.ReceivedMessageExists(ctx, ing.pool, msg)
		if err != nil {
			return saved, skipped, err
		}
		if exists {
			// Duplicate on (account, subject, date): silently skipped.
			skipped++
			continue
		}

		if err := db.SaveReceivedMessage(ctx, ing.pool, msg); err != nil {
			return saved, skipped, err
		}
		saved++
	}

	return saved, skipped, nil
}
