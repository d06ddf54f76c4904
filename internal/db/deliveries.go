package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailwise/mailwise/internal/models"
)

// SaveDeliveryRecord appends one terminal outbound attempt outcome. Records are
// write-once; there is no update path.
func SaveDeliveryRecord(ctx context.Context, pool *pgxpool.Pool, rec *models.DeliveryRecord) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO delivery_log (
			account_id,
			from_address,
			recipient,
			first_name,
			last_name,
			company,
			status,
			attachments,
			sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		rec.AccountID,
		rec.FromAddress,
		rec.Recipient,
		rec.FirstName,
		rec.LastName,
		rec.Company,
		rec.Status,
		rec.Attachments,
		rec.SentAt,
	).Scan(&rec.ID)

	if err != nil {
		return fmt.Errorf("failed to save delivery record: %w", err)
	}

	return nil
}

// ListDeliveryRecords returns delivery records newest first, capped at limit.
func ListDeliveryRecords(ctx context.Context, pool *pgxpool.Pool, limit int) ([]*models.DeliveryRecord, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, account_id, from_address, recipient, first_name, last_name,
		       company, status, attachments, sent_at
		FROM delivery_log
		ORDER BY sent_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery records: %w", err)
	}
	defer rows.Close()

	var records []*models.DeliveryRecord
	for rows.Next() {
		var rec models.DeliveryRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.AccountID,
			&rec.FromAddress,
			&rec.Recipient,
			&rec.FirstName,
			&rec.LastName,
			&rec.Company,
			&rec.Status,
			&rec.Attachments,
			&rec.SentAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan delivery record: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery records: %w", err)
	}

	return records, nil
}

// CountDeliveriesBetween returns the number of delivery records in [from, to).
func CountDeliveriesBetween(ctx context.Context, pool *pgxpool.Pool, from, to time.Time) (int, error) {
	var count int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM delivery_log WHERE sent_at >= $1 AND sent_at < $2
	`, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count delivery records: %w", err)
	}

	return count, nil
}
