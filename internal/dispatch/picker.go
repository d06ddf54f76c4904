package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailwise/mailwise/internal/db"
	"github.com/mailwise/mailwise/internal/models"
)

// ErrNoAccountAvailable is returned when every account is inactive or over its
// daily limit. Terminal for the item being processed, not for the batch.
var ErrNoAccountAvailable = errors.New("no mail account available: all accounts inactive or over daily limit")

// PickEligibleAccount lazily resets stale daily counters for every active
// account, filters to accounts under their limit, and selects one uniformly at
// random. Randomization spreads load instead of always favoring the first
// account.
func PickEligibleAccount(ctx context.Context, pool *pgxpool.Pool, startOfDay time.Time) (*models.MailAccount, error) {
	accounts, err := db.ListActiveAccounts(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}

	var eligible []*models.MailAccount
	for _, acc := range accounts {
		fresh, err := db.ResetIfStale(ctx, pool, acc.ID, startOfDay)
		if err != nil {
			return nil, fmt.Errorf("failed to reset quota for %s: %w", acc.FromAddress, err)
		}
		if fresh.SentToday < fresh.DailyLimit {
			eligible = append(eligible, fresh)
		}
	}

	if len(eligible) == 0 {
		return nil, ErrNoAccountAvailable
	}

	return eligible[rand.Intn(len(eligible))], nil
}
