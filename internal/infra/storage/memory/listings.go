package memory

import (
	"context"
	"sync"

	domainlistings "campusmarket/internal/domain/listings"
)

// ListingDirectory serves listing snapshots from memory; seeded from fixtures
// in dev and from tests directly.
type ListingDirectory struct {
	mu    sync.RWMutex
	items map[domainlistings.ListingID]domainlistings.Snapshot
}

func NewListingDirectory() *ListingDirectory {
	return &ListingDirectory{items: make(map[domainlistings.ListingID]domainlistings.Snapshot)}
}

func (d *ListingDirectory) SnapshotByID(ctx context.Context, id domainlistings.ListingID) (domainlistings.Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	snap, ok := d.items[id]
	if !ok {
		return domainlistings.Snapshot{}, domainlistings.ErrNotFound
	}
	return snap, nil
}

func (d *ListingDirectory) Save(ctx context.Context, snap domainlistings.Snapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[snap.ID] = snap
	return nil
}

// Remove deletes a listing; conversations referencing it fall back to the
// placeholder title.
func (d *ListingDirectory) Remove(ctx context.Context, id domainlistings.ListingID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.items, id)
}

var _ domainlistings.Directory = (*ListingDirectory)(nil)
