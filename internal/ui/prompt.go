package ui

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/ryo246912/gerrit-bridge/internal/models"
)

const (
	subjectWidth = 60
	ownerWidth   = 20
)

// ChangeLine renders one change as a fixed-width selection line
func ChangeLine(c models.Change) string {
	return fmt.Sprintf(
		"%s %s %s %s %s",
		PadRight(fmt.Sprintf("%d,%d", c.Number, c.CurrentPatchSet.Number), 10),
		PadRight(Truncate(c.Subject, subjectWidth), subjectWidth),
		PadRight(Truncate(c.Owner.String(), ownerWidth), ownerWidth),
		PadRight(VerifiedLabel(c.VerificationScore), 10),
		c.LastUpdate.Format("2006-01-02 15:04"),
	)
}

// VerifiedLabel renders a verification score for display
func VerifiedLabel(score int) string {
	switch {
	case score > 0:
		return fmt.Sprintf("+%d", score)
	case score < 0:
		return fmt.Sprintf("%d", score)
	default:
		return "-"
	}
}

// SelectChange shows a searchable list of changes
func SelectChange(changes []models.Change) (models.Change, error) {
	if len(changes) == 0 {
		return models.Change{}, fmt.Errorf("no open changes found")
	}

	items := make([]string, len(changes))
	for i, c := range changes {
		items[i] = ChangeLine(c)
	}

	prompt := promptui.Select{
		Label: "Select change",
		Items: items,
		Size:  12,
		Searcher: func(input string, index int) bool {
			return strings.Contains(strings.ToLower(items[index]), strings.ToLower(input))
		},
		StartInSearchMode: true,
	}

	idx, _, err := prompt.Run()
	if err != nil {
		return models.Change{}, fmt.Errorf("prompt failed: %w", err)
	}
	return changes[idx], nil
}

// ConfirmVote asks for user confirmation before voting
func ConfirmVote(change models.Change, pass bool) (bool, error) {
	vote := "Verified -1"
	if pass {
		vote = "Verified +1"
	}
	var confirm string
	for {
		fmt.Printf("Vote %s on %d,%d (%s)? (y/n): ", vote, change.Number, change.CurrentPatchSet.Number, change.Subject)
		if _, err := fmt.Scan(&confirm); err != nil {
			return false, fmt.Errorf("failed to read confirmation: %w", err)
		}
		switch strings.ToLower(confirm) {
		case "yes", "y":
			return true, nil
		case "no", "n":
			return false, nil
		default:
			fmt.Println("Please enter 'y' or 'n'.")
		}
	}
}
