package service

import (
	"context"
	"fmt"

	"github.com/ryo246912/gerrit-bridge/internal/gerrit"
	"github.com/ryo246912/gerrit-bridge/internal/models"
	"github.com/ryo246912/gerrit-bridge/internal/ui"
)

// VerifyRequest describes a manual vote. ChangeNumber 0 means pick interactively.
type VerifyRequest struct {
	ChangeNumber int
	PatchNumber  int
	Pass         bool
	Message      string
	Yes          bool
}

// VerifyService casts Verified votes on behalf of an operator
type VerifyService struct {
	client   gerrit.GerritClient
	detector *ChangeDetector
	prompter ui.Prompter
}

// NewVerifyService creates a new service instance
func NewVerifyService(client gerrit.GerritClient, detector *ChangeDetector, prompter ui.Prompter) *VerifyService {
	return &VerifyService{
		client:   client,
		detector: detector,
		prompter: prompter,
	}
}

// ProcessVerification handles the complete workflow
func (s *VerifyService) ProcessVerification(ctx context.Context, req VerifyRequest) (models.Change, error) {
	change, err := s.getChange(ctx, req)
	if err != nil {
		return models.Change{}, fmt.Errorf("failed to get change: %w", err)
	}

	patch := req.PatchNumber
	if patch == 0 {
		patch = change.CurrentPatchSet.Number
	}
	if patch <= 0 {
		return models.Change{}, fmt.Errorf("patch set number must be positive")
	}

	if !req.Yes {
		confirmed, err := s.prompter.ConfirmVote(change, req.Pass)
		if err != nil {
			return models.Change{}, fmt.Errorf("failed to confirm vote: %w", err)
		}
		if !confirmed {
			return models.Change{}, fmt.Errorf("vote cancelled")
		}
	}

	message := req.Message
	if message == "" {
		message = BuildResult{Success: req.Pass}.Message()
	}
	accepted, err := s.client.VerifyChange(ctx, req.Pass, change.Number, patch, message)
	if err != nil {
		return models.Change{}, fmt.Errorf("failed to verify change: %w", err)
	}
	if !accepted {
		return models.Change{}, fmt.Errorf("review command for %d,%d was rejected", change.Number, patch)
	}
	return change, nil
}

// getChange looks up the requested change or prompts among the unverified ones
func (s *VerifyService) getChange(ctx context.Context, req VerifyRequest) (models.Change, error) {
	if req.ChangeNumber < 0 {
		return models.Change{}, fmt.Errorf("change number must be positive")
	}
	if req.ChangeNumber > 0 {
		change, err := s.client.QueryChangeByID(ctx, fmt.Sprintf("%d", req.ChangeNumber))
		if err != nil {
			return models.Change{}, err
		}
		if change == nil {
			return models.Change{}, fmt.Errorf("change %d: %w", req.ChangeNumber, models.ErrChangeNotFound)
		}
		return *change, nil
	}

	changes, err := s.detector.OpenChanges(ctx, true)
	if err != nil {
		return models.Change{}, err
	}
	if len(changes) == 0 {
		return models.Change{}, fmt.Errorf("no unverified changes: %w", models.ErrChangeNotFound)
	}
	return s.prompter.SelectChange(changes)
}
