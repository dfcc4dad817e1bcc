//go:build integration

package candidate

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/matchfeed/internal/testdb"
)

func TestPostgresSource_GetCandidatesForViewer(t *testing.T) {
	db := testdb.Open(t)
	testdb.Truncate(t, db, "blocks", "profiles")

	now := time.Now()
	seed := []struct {
		id       string
		birth    time.Time
		lat, lng any
		country  string
		active   any
	}{
		{"pg-viewer", now.AddDate(-30, 0, 0), 52.52, 13.405, "DE", nil},
		{"pg-near", now.AddDate(-25, 0, 0), 52.53, 13.40, "DE", now.Add(-time.Hour)},
		{"pg-far", now.AddDate(-25, 0, 0), 48.8566, 2.3522, "FR", now.Add(-2 * time.Hour)},
		{"pg-minor", now.AddDate(-16, 0, 0), 52.52, 13.405, "DE", now},
		{"pg-blocked", now.AddDate(-25, 0, 0), 52.52, 13.405, "DE", now},
	}
	for _, p := range seed {
		if _, err := db.Exec(`
			INSERT INTO profiles (id, display_name, birthdate, latitude, longitude, country, last_active_at)
			VALUES ($1, $1, $2, $3, $4, $5, $6)
		`, p.id, p.birth, p.lat, p.lng, p.country, p.active); err != nil {
			t.Fatalf("failed to seed %s: %v", p.id, err)
		}
	}
	if _, err := db.Exec(`INSERT INTO blocks (blocker, blocked) VALUES ('pg-blocked', 'pg-viewer')`); err != nil {
		t.Fatalf("failed to seed block: %v", err)
	}

	src := NewPostgresSource(db, Config{}, nil)
	ctx := context.Background()

	nearby, err := src.GetCandidatesForViewer(ctx, "pg-viewer", RegionNearby, nil)
	if err != nil {
		t.Fatalf("nearby failed: %v", err)
	}
	if len(nearby) != 1 || nearby[0].ID != "pg-near" {
		t.Fatalf("expected only pg-near, got %+v", nearby)
	}
	if nearby[0].DistanceKm == nil {
		t.Error("expected distance to be computed")
	}

	global, err := src.GetCandidatesForViewer(ctx, "pg-viewer", RegionGlobal, []string{"pg-near"})
	if err != nil {
		t.Fatalf("global failed: %v", err)
	}
	if len(global) != 1 || global[0].ID != "pg-far" {
		t.Fatalf("expected only pg-far, got %+v", global)
	}
}
