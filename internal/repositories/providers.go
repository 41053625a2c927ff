package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/shared"
)

// ProviderLookup resolves a provider key to its backend row id.
type ProviderLookup func(ctx context.Context, key models.ProviderKey) (int64, error)

// ProviderDirectory memoizes successful [ProviderLookup] results. Failures are not cached.
type ProviderDirectory struct {
	mu     sync.Mutex
	lookup ProviderLookup
	ids    map[models.ProviderKey]int64
}

// NewProviderDirectory wraps lookup with a process-lifetime cache.
func NewProviderDirectory(lookup ProviderLookup) *ProviderDirectory {
	return &ProviderDirectory{lookup: lookup, ids: make(map[models.ProviderKey]int64)}
}

// ID returns the row id for key.
func (d *ProviderDirectory) ID(ctx context.Context, key models.ProviderKey) (int64, error) {
	d.mu.Lock()
	if id, ok := d.ids[key]; ok {
		d.mu.Unlock()
		return id, nil
	}
	d.mu.Unlock()

	id, err := d.lookup(ctx, key)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	d.ids[key] = id
	d.mu.Unlock()
	return id, nil
}

// SQLiteProviders looks provider ids up in the streaming_providers table.
func SQLiteProviders(db *sql.DB) ProviderLookup {
	return func(ctx context.Context, key models.ProviderKey) (int64, error) {
		var id int64
		err := db.QueryRowContext(ctx, "SELECT id FROM streaming_providers WHERE key = ?", string(key)).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: unknown provider %q", shared.ErrInvalidArgument, key)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to query provider: %w", err)
		}
		return id, nil
	}
}
