// Package selector ranks open changes and picks the one that should drive the next build.
package selector

import (
	"sort"

	"github.com/ryo246912/gerrit-bridge/internal/models"
)

// Less orders unverified changes before verified ones and newer before older.
// Changes that compare equal keep their server order when used with Rank.
func Less(a, b models.Change) bool {
	if a.IsVerified() != b.IsVerified() {
		return !a.IsVerified()
	}
	return a.LastUpdate.After(b.LastUpdate)
}

// Rank returns a sorted copy of changes
func Rank(changes []models.Change) []models.Change {
	ranked := make([]models.Change, len(changes))
	copy(ranked, changes)
	sort.SliceStable(ranked, func(i, j int) bool {
		return Less(ranked[i], ranked[j])
	})
	return ranked
}

// Latest returns the top ranked change
func Latest(changes []models.Change) (models.Change, bool) {
	if len(changes) == 0 {
		return models.Change{}, false
	}
	return Rank(changes)[0], true
}

// LatestUnverified returns the newest change without a Verified vote
func LatestUnverified(changes []models.Change) (models.Change, bool) {
	unverified := AllUnverified(changes)
	if len(unverified) == 0 {
		return models.Change{}, false
	}
	return unverified[0], true
}

// AllUnverified returns every change without a Verified vote, newest first
func AllUnverified(changes []models.Change) []models.Change {
	var unverified []models.Change
	for _, c := range Rank(changes) {
		if !c.IsVerified() {
			unverified = append(unverified, c)
		}
	}
	return unverified
}
