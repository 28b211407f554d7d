// Package snooze owns persistence of the snooze ledger. The filter and
// mutation logic in internal/nudge is store-agnostic; this package is the
// injected collaborator the caller hands it.
package snooze

import (
	"context"
	"time"

	"github.com/p-blackswan/pr-nudge/internal/nudge"
)

// Store is the snooze ledger storage interface.
type Store interface {
	// Snapshot returns a copy of the current ledger.
	Snapshot(ctx context.Context) (nudge.Ledger, error)
	// PruneExpired removes every entry whose expiry is at or before now
	// and reports how many were removed. It must touch only expired
	// entries, so a Set racing with a digest run is never lost.
	PruneExpired(ctx context.Context, now time.Time) (int, error)
	// Set stores one snooze entry. Overwrites any prior entry atomically.
	Set(ctx context.Context, id nudge.Identity, expiry time.Time) error
	// Delete removes one entry.
	Delete(ctx context.Context, id nudge.Identity) error
}
