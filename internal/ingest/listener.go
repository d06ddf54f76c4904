package ingest

import (
	"context"
	"log"
	"net"
	"strconv"
	"time"

	idle "github.com/emersion/go-imap-idle"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/mailwise/mailwise/internal/db"
	"github.com/mailwise/mailwise/internal/models"
)

// idleListenerSleep is the backoff duration after an error before retrying IDLE.
const idleListenerSleep = 10 * time.Second

// StartIdleListener runs an IMAP IDLE loop for one account's INBOX and triggers
// a fetch pass whenever the mailbox changes. Falls back to polling when the
// server does not support IDLE. Blocks until the context is canceled.
func (ing *Ingestor) StartIdleListener(ctx context.Context, accountID string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		account, err := db.GetAccount(ctx, ing.pool, accountID)
		if err != nil {
			log.Printf("ingest: IDLE: failed to load account %s: %v", accountID, err)
			time.Sleep(idleListenerSleep)
			continue
		}

		if !account.Active || !account.HasInbox() {
			time.Sleep(idleListenerSleep)
			continue
		}

		ing.runIdleLoop(ctx, account)

		// Small backoff before trying again.
		time.Sleep(idleListenerSleep)
	}
}

// runIdleLoop holds one listener connection in IDLE and fetches on updates.
// The fetch runs over its own connection; the listener connection stays idle.
func (ing *Ingestor) runIdleLoop(ctx context.Context, account *models.MailAccount) {
	password, err := ing.encryptor.Decrypt(account.EncryptedIMAPPassword)
	if err != nil {
		log.Printf("ingest: IDLE: failed to decrypt credentials for %s: %v", account.FromAddress, err)
		return
	}

	address := net.JoinHostPort(account.IMAPHost, strconv.Itoa(account.IMAPPort))
	c, err := connect(address, ing.useTLS)
	if err != nil {
		log.Printf("ingest: IDLE: failed to connect for %s: %v", account.FromAddress, err)
		return
	}
	defer func() { _ = c.Logout() }()

	if err := login(c, account.IMAPLogin(), password); err != nil {
		log.Printf("ingest: IDLE: failed to login for %s: %v", account.FromAddress, err)
		return
	}

	if _, err := c.Select("INBOX", false); err != nil {
		log.Printf("ingest: IDLE: failed to select INBOX for %s: %v", account.FromAddress, err)
		return
	}

	idleClient := idle.NewClient(c)

	updates := make(chan imapclient.Update, 10)
	c.Updates = updates

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- idleClient.IdleWithFallback(stop, 5*time.Minute)
	}()

	for {
		select {
		case <-ctx.Done():
			close(stop)
			<-done
			return
		case update := <-updates:
			if _, ok := update.(*imapclient.MailboxUpdate); ok {
				log.Printf("ingest: IDLE: mailbox update for %s, fetching", account.FromAddress)
				if _, _, err := ing.FetchInbox(ctx, account); err != nil {
					log.Printf("ingest: IDLE: fetch failed for %s: %v", account.FromAddress, err)
				}
			}
		case err := <-done:
			if err != nil {
				log.Printf("ingest: IDLE: loop ended for %s: %v", account.FromAddress, err)
			}
			return
		}
	}
}
