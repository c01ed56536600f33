package outbox

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestClaimFilterSelectsDueAndStaleEvents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	filter := claimFilter(now)

	branches, ok := filter["$or"].(bson.A)
	if !ok || len(branches) != 2 {
		t.Fatalf("filter = %v, want two $or branches", filter)
	}

	due, ok := branches[0].(bson.M)
	if !ok {
		t.Fatalf("due branch = %v", branches[0])
	}
	states, ok := due["state"].(bson.M)["$in"].([]string)
	if !ok || len(states) != 2 || states[0] != stateNew || states[1] != stateFailed {
		t.Errorf("due states = %v, want NEW and FAILED", due["state"])
	}
	if cutoff := due["next_attempt_at"].(bson.M)["$lte"].(time.Time); !cutoff.Equal(now) {
		t.Errorf("due cutoff = %v, want %v", cutoff, now)
	}

	stale, ok := branches[1].(bson.M)
	if !ok {
		t.Fatalf("stale branch = %v", branches[1])
	}
	if stale["state"] != stateClaimed {
		t.Errorf("stale state = %v, want %q", stale["state"], stateClaimed)
	}
	cutoff, ok := stale["claimed_at"].(bson.M)["$lte"].(time.Time)
	if !ok {
		t.Fatalf("stale branch has no claimed_at bound: %v", stale)
	}
	if want := now.Add(-claimTimeout); !cutoff.Equal(want) {
		t.Errorf("stale cutoff = %v, want %v", cutoff, want)
	}
	if !cutoff.Before(now) {
		t.Error("a claim taken this instant must not be reclaimable")
	}
}
