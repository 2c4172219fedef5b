package selector

import (
	"testing"
	"time"

	"github.com/ryo246912/gerrit-bridge/internal/models"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func change(id string, score int, minutes int) models.Change {
	return models.Change{
		ID:                id,
		VerificationScore: score,
		LastUpdate:        t0.Add(time.Duration(minutes) * time.Minute),
	}
}

func ids(changes []models.Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.ID
	}
	return out
}

func TestLatestUnverified_PrefersUnverified(t *testing.T) {
	c1 := change("C1", 0, 2)
	c2 := change("C2", 1, 3)

	got, ok := LatestUnverified([]models.Change{c1, c2})
	if !ok {
		t.Fatal("expected a candidate")
	}
	if got.ID != "C1" {
		t.Errorf("LatestUnverified() = %s, want C1", got.ID)
	}

	latest, _ := Latest([]models.Change{c2, c1})
	if latest.ID != "C1" {
		t.Errorf("Latest() = %s, want C1 (unverified ranks first regardless of time)", latest.ID)
	}
}

func TestLatestUnverified_NeverReturnsVerified(t *testing.T) {
	tests := []struct {
		name    string
		changes []models.Change
	}{
		{"all passed", []models.Change{change("A", 1, 5), change("B", 2, 1)}},
		{"all failed", []models.Change{change("A", -1, 5)}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, ok := LatestUnverified(tt.changes); ok {
				t.Errorf("LatestUnverified() = %s, want no candidate", got.ID)
			}
		})
	}
}

func TestLatest_FallsBackToVerified(t *testing.T) {
	got, ok := Latest([]models.Change{change("old", 1, 1), change("new", -1, 9)})
	if !ok || got.ID != "new" {
		t.Errorf("Latest() = %s, %v, want new, true", got.ID, ok)
	}

	if _, ok := Latest(nil); ok {
		t.Error("Latest(nil) should report no candidate")
	}
}

func TestRank(t *testing.T) {
	tests := []struct {
		name     string
		changes  []models.Change
		expected []string
	}{
		{
			name:     "unverified partition first, newest first within partitions",
			changes:  []models.Change{change("v-old", 1, 1), change("u-old", 0, 2), change("v-new", 1, 8), change("u-new", 0, 4)},
			expected: []string{"u-new", "u-old", "v-new", "v-old"},
		},
		{
			name:     "ties keep server order",
			changes:  []models.Change{change("first", 0, 3), change("second", 0, 3), change("third", 0, 3)},
			expected: []string{"first", "second", "third"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Rank(tt.changes))
			for i := range tt.expected {
				if got[i] != tt.expected[i] {
					t.Fatalf("Rank() = %v, want %v", got, tt.expected)
				}
			}
		})
	}
}

func TestAllUnverified(t *testing.T) {
	in := []models.Change{change("a", 0, 1), change("b", 1, 2), change("c", 0, 3)}
	got := ids(AllUnverified(in))
	if len(got) != 2 || got[0] != "c" || got[1] != "a" {
		t.Errorf("AllUnverified() = %v, want [c a]", got)
	}
	if in[0].ID != "a" {
		t.Error("AllUnverified() must not reorder its input")
	}
}
