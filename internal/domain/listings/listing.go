package listings

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("listings: not found")

type ListingID string

type Status string

const (
	StatusActive  Status = "active"
	StatusSold    Status = "sold"
	StatusDeleted Status = "deleted"
)

// PlaceholderTitle substitutes for listings that have been removed; chat
// previews referencing them must still render.
const PlaceholderTitle = "Deleted Listing"

// Snapshot is the read model the chat core needs from the listing catalog:
// enough to render a conversation preview and to verify a send target exists.
type Snapshot struct {
	ID       ListingID
	SellerID string
	Title    string
	ImageURL string
	Status   Status
}

// Directory resolves listing snapshots by id. The listing catalog itself is an
// external collaborator; the chat core only consumes this read contract.
type Directory interface {
	SnapshotByID(ctx context.Context, id ListingID) (Snapshot, error)
}

// PlaceholderSnapshot stands in for a missing listing so aggregation degrades
// instead of failing.
func PlaceholderSnapshot(id ListingID) Snapshot {
	return Snapshot{ID: id, Title: PlaceholderTitle, Status: StatusDeleted}
}

func NormalizeStatus(raw string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusActive:
		return StatusActive
	case StatusSold:
		return StatusSold
	case StatusDeleted:
		return StatusDeleted
	default:
		return StatusActive
	}
}
