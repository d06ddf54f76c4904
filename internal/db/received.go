package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailwise/mailwise/internal/models"
)

// ReceivedMessageExists reports whether a message matching the dedup key
// (account, subject, original date) is already recorded.
func ReceivedMessageExists(ctx context.Context, pool *pgxpool.Pool, msg *models.ReceivedMessage) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM received_mail
			WHERE account_id = $1 AND subject = $2 AND date IS NOT DISTINCT FROM $3
		)
	`, msg.AccountID, msg.Subject, msg.Date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check received message: %w", err)
	}

	return exists, nil
}

// SaveReceivedMessage persists an ingested message and populates its ID.
func SaveReceivedMessage(ctx context.Context, pool *pgxpool.Pool, msg *models.ReceivedMessage) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO received_mail (
			account_id,
			from_address,
			to_address,
			subject,
			body_text,
			date,
			raw_headers,
			attachments
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`,
		msg.AccountID,
		msg.FromAddress,
		msg.ToAddress,
		msg.Subject,
		msg.BodyText,
		msg.Date,
		msg.RawHeaders,
		msg.Attachments,
	).Scan(&msg.ID, &msg.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save received message: %w", err)
	}

	return nil
}

// ListReceivedMessages returns ingested messages for an account, newest first.
func ListReceivedMessages(ctx context.Context, pool *pgxpool.Pool, accountID string, limit int) ([]*models.ReceivedMessage, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, account_id, from_address, to_address, subject, body_text,
		       date, raw_headers, attachments, created_at
		FROM received_mail
		WHERE account_id = $1
		ORDER BY date DESC NULLS LAST, created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list received messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ReceivedMessage
	for rows.Next() {
		var msg models.ReceivedMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.AccountID,
			&msg.FromAddress,
			&msg.ToAddress,
			&msg.Subject,
			&msg.BodyText,
			&msg.Date,
			&msg.RawHeaders,
			&msg.Attachments,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan received message: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating received messages: %w", err)
	}

	return messages, nil
}

// CountReceivedMessages returns the number of ingested messages for an account.
func CountReceivedMessages(ctx context.Context, pool *pgxpool.Pool, accountID string) (int, error) {
	var count int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM received_mail WHERE account_id = $1
	`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count received messages: %w", err)
	}

	return count, nil
}
