package dispatch

import (
	"context"
	"fmt"
	"log"
	"mime"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailwise/mailwise/internal/config"
	"github.com/mailwise/mailwise/internal/crypto"
	"github.com/mailwise/mailwise/internal/db"
	"github.com/mailwise/mailwise/internal/models"
	"github.com/mailwise/mailwise/internal/smtp"
	ws "github.com/mailwise/mailwise/internal/websocket"
)

// Dispatcher pulls claimed queue items, picks a sending account per item, sends
// over SMTP, and writes back terminal states. One instance serves both the
// periodic and the on-demand trigger; double-claims are prevented by the
// store's atomic claim, not by anything here.
type Dispatcher struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
	sender    smtp.Sender
	hub       *ws.Hub

	globalDailyCap int
	batchCeiling   int
	sendDelay      time.Duration
	interval       time.Duration
	workers        int
	subject        string
	attachmentPath string
	smtpUseTLS     bool
	loc            *time.Location

	// Overridable in tests.
	now func() time.Time

	attachOnce sync.Once
	attachment *smtp.Attachment
	attachErr  error
}

// CycleResult summarizes one dispatch cycle. Callers get counts, never a hard
// failure for per-item problems.
type CycleResult struct {
	CapReached bool `json:"cap_reached"`
	Claimed    int  `json:"claimed"`
	Sent       int  `json:"sent"`
	Failed     int  `json:"failed"`
}

// New creates a Dispatcher. hub may be nil when no event sink is wanted.
func New(pool *pgxpool.Pool, encryptor *crypto.Encryptor, sender smtp.Sender, hub *ws.Hub, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		pool:           pool,
		encryptor:      encryptor,
		sender:         sender,
		hub:            hub,
		globalDailyCap: cfg.GlobalDailyCap,
		batchCeiling:   cfg.BatchCeiling,
		sendDelay:      cfg.SendDelay,
		interval:       cfg.DispatchInterval,
		workers:        cfg.DispatchWorkers,
		subject:        cfg.Subject,
		attachmentPath: cfg.AttachmentPath,
		smtpUseTLS:     cfg.SMTPUseTLS,
		loc:            cfg.Location(),
		now:            time.Now,
	}
}

// Run invokes a dispatch cycle on a fixed interval until the context is
// canceled. This is the periodic trigger; the manual trigger calls
// RunDispatchCycle directly and shares the same claim primitive.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.RunDispatchCycle(ctx); err != nil {
				log.Printf("dispatch: cycle failed: %v", err)
			}
		}
	}
}

// RunDispatchCycle performs one bounded dispatch cycle: count today's sends
// across all accounts, stop quietly if the global cap is reached, otherwise
// claim min(batchCeiling, remaining) pending items and process them. Returns an
// error only for infrastructure faults; per-item failures land in the counts.
func (d *Dispatcher) RunDispatchCycle(ctx context.Context) (*CycleResult, error) {
	dayStart := startOfDay(d.now(), d.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	sentToday, err := db.CountSentBetween(ctx, d.pool, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	if sentToday >= d.globalDailyCap {
		// Expected steady state once the cap is hit, not an error.
		log.Printf("dispatch: global daily cap (%d) reached, skipping cycle", d.globalDailyCap)
		result := &CycleResult{CapReached: true}
		d.hub.Broadcast(ws.Event{Type: "dispatch_cycle", Data: result})
		return result, nil
	}

	remaining := d.globalDailyCap - sentToday
	items, err := db.ClaimBatch(ctx, d.pool, min(d.batchCeiling, remaining))
	if err != nil {
		return nil, err
	}

	log.Printf("dispatch: claimed %d items (remaining daily budget: %d)", len(items), remaining)

	result := d.processBatch(ctx, items)
	d.hub.Broadcast(ws.Event{Type: "dispatch_cycle", Data: result})
	return result, nil
}

// DispatchItem claims and processes a single queue item on demand.
func (d *Dispatcher) DispatchItem(ctx context.Context, itemID string) error {
	item, err := db.ClaimItem(ctx, d.pool, itemID)
	if err != nil {
		return err
	}

	return d.processItem(ctx, item)
}

// processBatch fans the batch out to a bounded worker pool. Each worker paces
// itself with a fixed delay between consecutive sends; the delay holds no lock
// and does not slow other workers.
func (d *Dispatcher) processBatch(ctx context.Context, items []*models.QueueItem) *CycleResult {
	result := &CycleResult{Claimed: len(items)}
	if len(items) == 0 {
		return result
	}

	jobs := make(chan *models.QueueItem)
	var wg sync.WaitGroup
	var mu sync.Mutex

	workers := min(d.workers, len(items))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			first := true
			for item := range jobs {
				if !first && d.sendDelay > 0 {
					time.Sleep(d.sendDelay)
				}
				first = false

				err := d.processItem(ctx, item)

				mu.Lock()
				if err != nil {
					result.Failed++
				} else {
					result.Sent++
				}
				mu.Unlock()
			}
		}()
	}

	for _, item := range items {
		jobs <- item
	}
	close(jobs)
	wg.Wait()

	return result
}

// processItem handles one claimed item end to end. Every failure is terminal
// for the item (error state with detail) and never for the batch.
func (d *Dispatcher) processItem(ctx context.Context, item *models.QueueItem) error {
	account, err := PickEligibleAccount(ctx, d.pool, startOfDay(d.now(), d.loc))
	if err != nil {
		d.failItem(ctx, item, err)
		return err
	}

	msg, err := d.buildMessage(account, item)
	if err != nil {
		d.failItem(ctx, item, err)
		return err
	}

	password, err := d.encryptor.Decrypt(account.EncryptedPassword)
	if err != nil {
		d.failItem(ctx, item, fmt.Errorf("failed to decrypt credentials for %s: %w", account.FromAddress, err))
		return err
	}

	creds := smtp.Credentials{
		Address:  net.JoinHostPort(account.SMTPHost, strconv.Itoa(account.SMTPPort)),
		Username: account.Username,
		Password: password,
		UseTLS:   d.smtpUseTLS,
	}

	if err := d.sender.Send(creds, msg); err != nil {
		d.failItem(ctx, item, err)
		return err
	}

	now := d.now()

	if err := db.RecordSend(ctx, d.pool, account.ID, now); err != nil {
		// The message already left; the counter being off by one is the lesser
		// problem. Log and keep going.
		log.Printf("dispatch: failed to record send for %s: %v", account.FromAddress, err)
	}

	if err := db.MarkSent(ctx, d.pool, item.ID, account.ID, now); err != nil {
		log.Printf("dispatch: failed to mark %s sent: %v", item.Recipient, err)
		return err
	}

	attachments := make([]string, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, att.Filename)
	}

	record := &models.DeliveryRecord{
		AccountID:   account.ID,
		FromAddress: account.FromAddress,
		Recipient:   item.Recipient,
		FirstName:   item.Person.FirstName,
		LastName:    item.Person.LastName,
		Company:     item.Person.CompanyName(),
		Status:      models.QueueStatusSent,
		Attachments: attachments,
		SentAt:      now,
	}
	if err := db.SaveDeliveryRecord(ctx, d.pool, record); err != nil {
		log.Printf("dispatch: failed to save delivery record for %s: %v", item.Recipient, err)
	}

	log.Printf("dispatch: sent to %s from %s", item.Recipient, account.FromAddress)
	d.hub.Broadcast(ws.Event{Type: "send", Data: record})
	return nil
}

// failItem records a terminal error state for the item. There is no automatic
// re-queue; remediation is manual.
func (d *Dispatcher) failItem(ctx context.Context, item *models.QueueItem, cause error) {
	log.Printf("dispatch: failed to send to %s: %v", item.Recipient, cause)

	if err := db.MarkError(ctx, d.pool, item.ID, cause.Error()); err != nil {
		log.Printf("dispatch: failed to mark %s errored: %v", item.Recipient, err)
	}
}

// buildMessage renders the body and attaches the configured fixed document.
func (d *Dispatcher) buildMessage(account *models.MailAccount, item *models.QueueItem) (*smtp.Message, error) {
	msg := &smtp.Message{
		From:    account.FromAddress,
		To:      item.Recipient,
		Subject: d.subject,
		Text:    RenderBody(&item.Person),
	}

	att, err := d.loadAttachment()
	if err != nil {
		return nil, err
	}
	if att != nil {
		msg.Attachments = append(msg.Attachments, *att)
	}

	return msg, nil
}

// loadAttachment reads the fixed attachment once and caches it for the process
// lifetime. No configured path means no attachment.
func (d *Dispatcher) loadAttachment() (*smtp.Attachment, error) {
	d.attachOnce.Do(func() {
		if d.attachmentPath == "" {
			return
		}

		content, err := os.ReadFile(d.attachmentPath)
		if err != nil {
			d.attachErr = fmt.Errorf("failed to read attachment: %w", err)
			return
		}

		contentType := mime.TypeByExtension(filepath.Ext(d.attachmentPath))
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		d.attachment = &smtp.Attachment{
			Filename:    filepath.Base(d.attachmentPath),
			ContentType: contentType,
			Content:     content,
		}
	})

	return d.attachment, d.attachErr
}

// startOfDay returns local midnight for t in the given location.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
