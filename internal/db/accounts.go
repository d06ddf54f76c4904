package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailwise/mailwise/internal/models"
)

var (
	// ErrAccountNotFound is returned when a requested mail account cannot be found.
	ErrAccountNotFound = errors.New("mail account not found")
	// ErrQuotaExceeded is returned when an atomic send increment would push an
	// account past its daily limit.
	ErrQuotaExceeded = errors.New("account daily limit reached")
)

const accountColumns = `
	id,
	username,
	from_address,
	smtp_host,
	smtp_port,
	encrypted_password,
	daily_limit,
	sent_today,
	last_sent_date,
	active,
	imap_host,
	imap_port,
	imap_username,
	encrypted_imap_password`

func scanAccount(row pgx.Row) (*models.MailAccount, error) {
	var acc models.MailAccount
	if err := row.Scan(
		&acc.ID,
		&acc.Username,
		&acc.FromAddress,
		&acc.SMTPHost,
		&acc.SMTPPort,
		&acc.EncryptedPassword,
		&acc.DailyLimit,
		&acc.SentToday,
		&acc.LastSentDate,
		&acc.Active,
		&acc.IMAPHost,
		&acc.IMAPPort,
		&acc.IMAPUsername,
		&acc.EncryptedIMAPPassword,
	); err != nil {
		return nil, err
	}
	return &acc, nil
}

// CreateAccount inserts a new mail account and populates its ID.
func CreateAccount(ctx context.Context, pool *pgxpool.Pool, acc *models.MailAccount) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO mail_accounts (
			username,
			from_address,
			smtp_host,
			smtp_port,
			encrypted_password,
			daily_limit,
			active,
			imap_host,
			imap_port,
			imap_username,
			encrypted_imap_password
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`,
		acc.Username,
		acc.FromAddress,
		acc.SMTPHost,
		acc.SMTPPort,
		acc.EncryptedPassword,
		acc.DailyLimit,
		acc.Active,
		acc.IMAPHost,
		acc.IMAPPort,
		acc.IMAPUsername,
		acc.EncryptedIMAPPassword,
	).Scan(&acc.ID)

	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// UpdateAccount updates the management-editable fields of an account. Quota
// fields are owned by the dispatcher and are not touched here.
func UpdateAccount(ctx context.Context, pool *pgxpool.Pool, acc *models.MailAccount) error {
	tag, err := pool.Exec(ctx, `
		UPDATE mail_accounts
		SET username = $2,
		    from_address = $3,
		    smtp_host = $4,
		    smtp_port = $5,
		    daily_limit = $6,
		    active = $7,
		    imap_host = $8,
		    imap_port = $9,
		    imap_username = $10
		WHERE id = $1
	`,
		acc.ID,
		acc.Username,
		acc.FromAddress,
		acc.SMTPHost,
		acc.SMTPPort,
		acc.DailyLimit,
		acc.Active,
		acc.IMAPHost,
		acc.IMAPPort,
		acc.IMAPUsername,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// UpdateAccountPassword replaces the stored outbound credential.
func UpdateAccountPassword(ctx context.Context, pool *pgxpool.Pool, accountID string, encrypted []byte) error {
	tag, err := pool.Exec(ctx, `
		UPDATE mail_accounts SET encrypted_password = $2 WHERE id = $1
	`, accountID, encrypted)
	if err != nil {
		return fmt.Errorf("failed to update account password: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// UpdateAccountIMAPPassword replaces the stored inbound credential.
func UpdateAccountIMAPPassword(ctx context.Context, pool *pgxpool.Pool, accountID string, encrypted []byte) error {
	tag, err := pool.Exec(ctx, `
		UPDATE mail_accounts SET encrypted_imap_password = $2 WHERE id = $1
	`, accountID, encrypted)
	if err != nil {
		return fmt.Errorf("failed to update account IMAP password: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// DeleteAccount removes an account. Fails if the account is referenced by
// delivery history (foreign key).
func DeleteAccount(ctx context.Context, pool *pgxpool.Pool, accountID string) error {
	tag, err := pool.Exec(ctx, `DELETE FROM mail_accounts WHERE id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// GetAccount returns a single account by ID.
func GetAccount(ctx context.Context, pool *pgxpool.Pool, accountID string) (*models.MailAccount, error) {
	acc, err := scanAccount(pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM mail_accounts WHERE id = $1
	`, accountID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return acc, nil
}

// ListAccounts returns all accounts.
func ListAccounts(ctx context.Context, pool *pgxpool.Pool) ([]*models.MailAccount, error) {
	return listAccounts(ctx, pool, `SELECT `+accountColumns+` FROM mail_accounts ORDER BY from_address`)
}

// ListActiveAccounts returns all active accounts.
func ListActiveAccounts(ctx context.Context, pool *pgxpool.Pool) ([]*models.MailAccount, error) {
	return listAccounts(ctx, pool, `
		SELECT `+accountColumns+` FROM mail_accounts WHERE active = TRUE ORDER BY from_address`)
}

func listAccounts(ctx context.Context, pool *pgxpool.Pool, query string) ([]*models.MailAccount, error) {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.MailAccount
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// ResetIfStale zeroes sent_today when last_sent_date predates startOfDay. The
// condition lives inside the UPDATE so that concurrent resets cannot clobber
// each other, and a no-op is cheap. Returns the account's current counters.
func ResetIfStale(ctx context.Context, pool *pgxpool.Pool, accountID string, startOfDay time.Time) (*models.MailAccount, error) {
	_, err := pool.Exec(ctx, `
		UPDATE mail_accounts
		SET sent_today = 0, last_sent_date = $2
		WHERE id = $1 AND (last_sent_date IS NULL OR last_sent_date < $2)
	`, accountID, startOfDay)
	if err != nil {
		return nil, fmt.Errorf("failed to reset stale quota: %w", err)
	}

	return GetAccount(ctx, pool, accountID)
}

// RecordSend atomically increments an account's sent counter, refusing the
// increment when it would exceed the daily limit. This is the quota gate under
// concurrent workers: two racing increments both go through only if both fit.
func RecordSend(ctx context.Context, pool *pgxpool.Pool, accountID string, now time.Time) error {
	tag, err := pool.Exec(ctx, `
		UPDATE mail_accounts
		SET sent_today = sent_today + 1, last_sent_date = $2
		WHERE id = $1 AND sent_today < daily_limit
	`, accountID, now)
	if err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a missing account from a full quota.
		if _, getErr := GetAccount(ctx, pool, accountID); getErr != nil {
			return getErr
		}
		return ErrQuotaExceeded
	}

	return nil
}
