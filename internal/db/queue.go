package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailwise/mailwise/internal/models"
)

// ErrQueueItemNotFound is returned when a requested queue item cannot be found.
var ErrQueueItemNotFound = errors.New("queue item not found")

const queueItemColumns = `
	id,
	recipient,
	person,
	status,
	is_send,
	is_processing,
	account_id,
	error_detail,
	created_at,
	sent_at`

func scanQueueItem(row pgx.Row) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := row.Scan(
		&item.ID,
		&item.Recipient,
		&item.Person,
		&item.Status,
		&item.IsSend,
		&item.IsProcessing,
		&item.AccountID,
		&item.ErrorDetail,
		&item.CreatedAt,
		&item.SentAt,
	); err != nil {
		return nil, err
	}
	return &item, nil
}

// EnqueueIfNew inserts pending queue items for the given recipients, skipping any
// recipient that is already queued. Returns the number of items actually inserted.
// Re-importing an overlapping recipient set is a no-op for the overlap.
func EnqueueIfNew(ctx context.Context, pool *pgxpool.Pool, recipient string, person models.Person) (int, error) {
	tag, err := pool.Exec(ctx, `
		INSERT INTO email_queue (recipient, person)
		VALUES ($1, $2)
		ON CONFLICT (recipient) DO NOTHING
	`, recipient, person)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s: %w", recipient, err)
	}

	return int(tag.RowsAffected()), nil
}

// ClaimBatch atomically selects up to maxCount pending, unclaimed items in
// insertion order and flips them to processing in the same statement. Two
// concurrent claimants can never receive the same item: the inner select locks
// the rows it picks and skips rows locked by the other claimant.
func ClaimBatch(ctx context.Context, pool *pgxpool.Pool, maxCount int) ([]*models.QueueItem, error) {
	if maxCount <= 0 {
		return nil, nil
	}

	rows, err := pool.Query(ctx, `
		UPDATE email_queue
		SET status = 'processing', is_processing = TRUE
		WHERE id IN (
			SELECT id FROM email_queue
			WHERE status = 'pending' AND is_processing = FALSE
			ORDER BY created_at, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+queueItemColumns, maxCount)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claimed items: %w", err)
	}

	// UPDATE ... RETURNING does not preserve the inner select's order.
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	return items, nil
}

// ClaimItem atomically claims a single pending item by ID, flipping it to
// processing. Returns ErrQueueItemNotFound when the item does not exist or is
// not claimable (already processing, sent, or errored).
func ClaimItem(ctx context.Context, pool *pgxpool.Pool, itemID string) (*models.QueueItem, error) {
	item, err := scanQueueItem(pool.QueryRow(ctx, `
		UPDATE email_queue
		SET status = 'processing', is_processing = TRUE
		WHERE id = $1 AND status = 'pending' AND is_processing = FALSE
		RETURNING `+queueItemColumns, itemID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQueueItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim item: %w", err)
	}

	return item, nil
}

// MarkSent transitions a processing item to sent, records the sending account,
// and clears the processing flag. Only valid from the processing state.
func MarkSent(ctx context.Context, pool *pgxpool.Pool, itemID, accountID string, sentAt time.Time) error {
	tag, err := pool.Exec(ctx, `
		UPDATE email_queue
		SET status = 'sent',
		    is_send = TRUE,
		    is_processing = FALSE,
		    account_id = $2,
		    sent_at = $3,
		    error_detail = NULL
		WHERE id = $1 AND status = 'processing'
	`, itemID, accountID, sentAt)
	if err != nil {
		return fmt.Errorf("failed to mark item sent: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrQueueItemNotFound
	}

	return nil
}

// MarkError transitions a processing item to the terminal error state and
// records the failure detail. There is no automatic re-queue.
func MarkError(ctx context.Context, pool *pgxpool.Pool, itemID, detail string) error {
	tag, err := pool.Exec(ctx, `
		UPDATE email_queue
		SET status = 'error',
		    is_processing = FALSE,
		    error_detail = $2
		WHERE id = $1 AND status = 'processing'
	`, itemID, detail)
	if err != nil {
		return fmt.Errorf("failed to mark item errored: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrQueueItemNotFound
	}

	return nil
}

// GetQueueItem returns a single queue item by ID.
func GetQueueItem(ctx context.Context, pool *pgxpool.Pool, itemID string) (*models.QueueItem, error) {
	item, err := scanQueueItem(pool.QueryRow(ctx, `
		SELECT `+queueItemColumns+` FROM email_queue WHERE id = $1
	`, itemID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQueueItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}

	return item, nil
}

// ListQueueItems returns queue items in insertion order, newest last, capped at limit.
func ListQueueItems(ctx context.Context, pool *pgxpool.Pool, limit int) ([]*models.QueueItem, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+queueItemColumns+`
		FROM email_queue
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue items: %w", err)
	}

	return items, nil
}

// CountSentBetween returns the number of items sent in [from, to) across all
// accounts. The scheduler uses this with today's window to enforce the global
// daily cap.
func CountSentBetween(ctx context.Context, pool *pgxpool.Pool, from, to time.Time) (int, error) {
	var count int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM email_queue
		WHERE is_send = TRUE AND sent_at >= $1 AND sent_at < $2
	`, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sent items: %w", err)
	}

	return count, nil
}

// QueueCounts summarizes the queue by lifecycle state.
type QueueCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Sent       int `json:"sent"`
	Error      int `json:"error"`
}

// CountQueueByStatus returns per-state counts for the whole queue.
func CountQueueByStatus(ctx context.Context, pool *pgxpool.Pool) (*QueueCounts, error) {
	rows, err := pool.Query(ctx, `
		SELECT status, COUNT(*) FROM email_queue GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}
	defer rows.Close()

	var counts QueueCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan queue count: %w", err)
		}
		switch status {
		case models.QueueStatusPending:
			counts.Pending = n
		case models.QueueStatusProcessing:
			counts.Processing = n
		case models.QueueStatusSent:
			counts.Sent = n
		case models.QueueStatusError:
			counts.Error = n
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue counts: %w", err)
	}

	return &counts, nil
}
