package service

import (
	"context"
	"fmt"

	"github.com/ryo246912/gerrit-bridge/internal/gerrit"
	"github.com/ryo246912/gerrit-bridge/internal/models"
	"go.uber.org/zap"
)

// BuildResult is what the CI server reports back for one revision
type BuildResult struct {
	Success    bool
	ResultsURL string
}

// Message renders the review comment posted with the vote
func (r BuildResult) Message() string {
	msg := "Build failed."
	if r.Success {
		msg = "Build succeeded."
	}
	if r.ResultsURL != "" {
		msg += " " + r.ResultsURL
	}
	return msg
}

// ReportOutcome says what became of a build report
type ReportOutcome int

const (
	// ReportAccepted means the server applied the vote
	ReportAccepted ReportOutcome = iota
	// ReportRejected means the review command ran but the server refused it
	ReportRejected
	// ReportSkipped means the revision is not an open patch set
	ReportSkipped
)

func (o ReportOutcome) String() string {
	switch o {
	case ReportAccepted:
		return "accepted"
	case ReportRejected:
		return "rejected"
	case ReportSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Reporter turns build results into Verified votes
type Reporter struct {
	client gerrit.GerritClient
	log    *zap.SugaredLogger
}

// NewReporter creates a Reporter
func NewReporter(client gerrit.GerritClient, log *zap.SugaredLogger) *Reporter {
	return &Reporter{client: client, log: log.Named("reporter")}
}

// Report votes Verified +1 or -1 on the patch set identified by revision
func (r *Reporter) Report(ctx context.Context, revision string, result BuildResult) (ReportOutcome, error) {
	change, err := r.client.QueryChangeByRevision(ctx, revision)
	if err != nil {
		return ReportSkipped, fmt.Errorf("failed to look up revision %s: %w", revision, err)
	}
	if change == nil {
		return ReportSkipped, fmt.Errorf("revision %s: %w", revision, models.ErrChangeNotFound)
	}
	if !change.Open {
		r.log.Infow("change is closed, nothing to report", "revision", revision, "status", change.Status)
		return ReportSkipped, nil
	}

	patch := change.CurrentPatchSet.Number
	for _, ps := range change.PatchSets {
		if ps.Revision == revision {
			patch = ps.Number
			break
		}
	}

	accepted, err := r.client.VerifyChange(ctx, result.Success, change.Number, patch, result.Message())
	if err != nil {
		return ReportRejected, fmt.Errorf("failed to report build result: %w", err)
	}
	if !accepted {
		r.log.Warnw("vote rejected", "change", change.Number, "patch", patch)
		return ReportRejected, nil
	}
	r.log.Infow("vote recorded", "change", change.Number, "patch", patch, "success", result.Success)
	return ReportAccepted, nil
}
