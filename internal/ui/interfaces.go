package ui

import "github.com/ryo246912/gerrit-bridge/internal/models"

// Prompter defines interface for user interaction
type Prompter interface {
	SelectChange(changes []models.Change) (models.Change, error)
	ConfirmVote(change models.Change, pass bool) (bool, error)
}

// DefaultPrompter implements the actual prompting logic
type DefaultPrompter struct{}

// SelectChange prompts user to select a change
func (p *DefaultPrompter) SelectChange(changes []models.Change) (models.Change, error) {
	return SelectChange(changes)
}

// ConfirmVote prompts user to confirm the vote
func (p *DefaultPrompter) ConfirmVote(change models.Change, pass bool) (bool, error) {
	return ConfirmVote(change, pass)
}

// MockPrompter for testing
type MockPrompter struct {
	SelectedChange       models.Change
	ChangeSelectionError error

	ConfirmedVote     bool
	ConfirmationError error

	// Call tracking
	SelectChangeCalled bool
	ConfirmVoteCalled  bool
	OfferedChanges     []models.Change
}

// SelectChange mocks change selection
func (m *MockPrompter) SelectChange(changes []models.Change) (models.Change, error) {
	m.SelectChangeCalled = true
	m.OfferedChanges = changes
	return m.SelectedChange, m.ChangeSelectionError
}

// ConfirmVote mocks confirmation
func (m *MockPrompter) ConfirmVote(change models.Change, pass bool) (bool, error) {
	m.ConfirmVoteCalled = true
	return m.ConfirmedVote, m.ConfirmationError
}
