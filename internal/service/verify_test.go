package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ryo246912/gerrit-bridge/internal/gerrit"
	"github.com/ryo246912/gerrit-bridge/internal/models"
	"github.com/ryo246912/gerrit-bridge/internal/store"
	"github.com/ryo246912/gerrit-bridge/internal/ui"
	"go.uber.org/zap"
)

func TestVerifyService_ProcessVerification(t *testing.T) {
	unverified := gerrit.CreateTestChange(5, "aaa", 0, 5)
	verified := gerrit.CreateTestChange(6, "bbb", 1, 6)

	tests := []struct {
		name            string
		req             VerifyRequest
		openChanges     []models.Change
		selected        models.Change
		confirmed       bool
		accepted        bool
		verifyErr       error
		expectError     bool
		errorContains   string
		expectPrompt    bool
		expectConfirm   bool
		expectedChange  int
		expectedPatch   int
		expectedMessage string
	}{
		{
			name:            "change number given",
			req:             VerifyRequest{ChangeNumber: 5, Pass: true},
			confirmed:       true,
			accepted:        true,
			expectConfirm:   true,
			expectedChange:  5,
			expectedPatch:   1,
			expectedMessage: "Build succeeded.",
		},
		{
			name:            "explicit patch and message without confirmation",
			req:             VerifyRequest{ChangeNumber: 5, PatchNumber: 4, Message: "manual", Yes: true},
			accepted:        true,
			expectedChange:  5,
			expectedPatch:   4,
			expectedMessage: "manual",
		},
		{
			name:            "interactive selection offers unverified changes",
			req:             VerifyRequest{Pass: false},
			openChanges:     []models.Change{verified, unverified},
			selected:        unverified,
			confirmed:       true,
			accepted:        true,
			expectPrompt:    true,
			expectConfirm:   true,
			expectedChange:  5,
			expectedPatch:   1,
			expectedMessage: "Build failed.",
		},
		{
			name:          "nothing to select",
			req:           VerifyRequest{},
			openChanges:   []models.Change{verified},
			expectError:   true,
			errorContains: "no unverified changes",
		},
		{
			name:          "unknown change",
			req:           VerifyRequest{ChangeNumber: 99},
			expectError:   true,
			errorContains: "change not found",
		},
		{
			name:          "negative change number",
			req:           VerifyRequest{ChangeNumber: -1},
			expectError:   true,
			errorContains: "must be positive",
		},
		{
			name:          "cancelled",
			req:           VerifyRequest{ChangeNumber: 5, Pass: true},
			confirmed:     false,
			expectConfirm: true,
			expectError:   true,
			errorContains: "vote cancelled",
		},
		{
			name:          "rejected by server",
			req:           VerifyRequest{ChangeNumber: 5, Pass: true, Yes: true},
			accepted:      false,
			expectError:   true,
			errorContains: "was rejected",
		},
		{
			name:          "transport failure",
			req:           VerifyRequest{ChangeNumber: 5, Pass: true, Yes: true},
			verifyErr:     errors.New("connection reset"),
			expectError:   true,
			errorContains: "failed to verify change",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &gerrit.MockClient{
				OpenChanges:    tt.openChanges,
				VerifyAccepted: tt.accepted,
				VerifyError:    tt.verifyErr,
				ChangesByID:    map[string]*models.Change{"5": &unverified},
			}
			prompter := &ui.MockPrompter{SelectedChange: tt.selected, ConfirmedVote: tt.confirmed}
			detector := NewChangeDetector(client, store.NewMemoryStore(), nil,
				DetectorConfig{Project: "test-project", Branch: "master"}, zap.NewNop().Sugar())
			service := NewVerifyService(client, detector, prompter)

			change, err := service.ProcessVerification(context.Background(), tt.req)

			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("expected error to contain %q, got %q", tt.errorContains, err.Error())
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if prompter.SelectChangeCalled != tt.expectPrompt {
				t.Errorf("SelectChangeCalled = %v, want %v", prompter.SelectChangeCalled, tt.expectPrompt)
			}
			if tt.expectPrompt && len(prompter.OfferedChanges) != 1 {
				t.Errorf("offered %d changes, want 1", len(prompter.OfferedChanges))
			}
			if prompter.ConfirmVoteCalled != tt.expectConfirm {
				t.Errorf("ConfirmVoteCalled = %v, want %v", prompter.ConfirmVoteCalled, tt.expectConfirm)
			}
			if tt.expectError {
				return
			}

			if change.Number != tt.expectedChange {
				t.Errorf("change = %d, want %d", change.Number, tt.expectedChange)
			}
			if client.LastChangeNumber != tt.expectedChange || client.LastPatchNumber != tt.expectedPatch {
				t.Errorf("voted on %d,%d, want %d,%d", client.LastChangeNumber, client.LastPatchNumber, tt.expectedChange, tt.expectedPatch)
			}
			if client.LastPass != tt.req.Pass {
				t.Errorf("LastPass = %v, want %v", client.LastPass, tt.req.Pass)
			}
			if client.LastMessage != tt.expectedMessage {
				t.Errorf("LastMessage = %q, want %q", client.LastMessage, tt.expectedMessage)
			}
		})
	}
}
