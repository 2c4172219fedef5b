package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ryo246912/gerrit-bridge/internal/gerrit"
	"github.com/ryo246912/gerrit-bridge/internal/models"
	"github.com/ryo246912/gerrit-bridge/internal/selector"
	"github.com/ryo246912/gerrit-bridge/internal/store"
	"go.uber.org/zap"
)

// AllBranches as the configured branch widens the query to every branch of the project
const AllBranches = "All branches"

// DetectorConfig scopes change detection to one project and branch
type DetectorConfig struct {
	RepositoryID    string
	Project         string
	Branch          string
	HistoryFallback bool
}

// HistorySource reads a branch head straight from the repository
type HistorySource interface {
	BranchHead(ctx context.Context, branch string) (models.CommitInfo, error)
}

// ChangeDetector decides, once per poll, what the CI server should build next
type ChangeDetector struct {
	client  gerrit.GerritClient
	store   store.RevisionStore
	history HistorySource
	cfg     DetectorConfig
	log     *zap.SugaredLogger
	now     func() time.Time
}

// NewChangeDetector creates a detector. history may be nil when the fallback is off.
func NewChangeDetector(client gerrit.GerritClient, revisions store.RevisionStore, history HistorySource, cfg DetectorConfig, log *zap.SugaredLogger) *ChangeDetector {
	return &ChangeDetector{
		client:  client,
		store:   revisions,
		history: history,
		cfg:     cfg,
		log:     log.Named("detector"),
		now:     time.Now,
	}
}

func (d *ChangeDetector) queryBranch() string {
	if d.cfg.Branch == AllBranches {
		return ""
	}
	return d.cfg.Branch
}

// selectCandidate prefers the newest unverified change, then the newest of all
func (d *ChangeDetector) selectCandidate(ctx context.Context) (models.Change, bool, error) {
	changes, err := d.client.QueryOpenChanges(ctx, d.cfg.Project, d.queryBranch())
	if err != nil {
		return models.Change{}, false, err
	}
	if c, ok := selector.LatestUnverified(changes); ok {
		return c, true, nil
	}
	c, ok := selector.Latest(changes)
	return c, ok, nil
}

// CollectChangesSinceRevision runs one poll. previousKey is the revision the CI
// server built last and may be empty on the first poll.
func (d *ChangeDetector) CollectChangesSinceRevision(ctx context.Context, previousKey string) (*models.BuildChanges, error) {
	log := d.log.With("poll_id", uuid.NewString(), "previous", previousKey)

	candidate, ok, err := d.selectCandidate(ctx)
	if err != nil {
		log.Errorw("poll failed", "error", err)
		return nil, fmt.Errorf("failed to collect changes: %w", err)
	}
	if !ok {
		return d.noCandidate(ctx, log, previousKey)
	}

	revision := candidate.LastRevision()
	log = log.With("change", candidate.ID, "number", candidate.Number, "revision", revision)

	if previousKey != "" && revision == previousKey {
		stored, found, err := d.store.Get(ctx, candidate.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read revision state: %w", err)
		}
		if found && stored == revision {
			log.Infow("revision already built")
			return &models.BuildChanges{
				RepositoryID: d.cfg.RepositoryID,
				RevisionKey:  previousKey,
				Commits:      []models.Commit{},
				Branch:       d.cfg.Branch,
				ActualBranch: d.actualBranch(candidate),
				Outcome:      models.OutcomeDuplicate,
			}, nil
		}
	}

	changes := &models.BuildChanges{
		RepositoryID: d.cfg.RepositoryID,
		RevisionKey:  revision,
		Commits:      []models.Commit{ConvertChangeToCommit(candidate, true)},
		Branch:       d.cfg.Branch,
		ActualBranch: d.actualBranch(candidate),
		Outcome:      models.OutcomeNewChange,
	}

	if err := d.store.Set(ctx, candidate.ID, revision); err != nil {
		return nil, fmt.Errorf("failed to record revision state: %w", err)
	}
	log.Infow("new revision to build", "verified", candidate.IsVerified(), "branch", candidate.Branch)
	return changes, nil
}

func (d *ChangeDetector) noCandidate(ctx context.Context, log *zap.SugaredLogger, previousKey string) (*models.BuildChanges, error) {
	branch := d.queryBranch()
	if d.cfg.HistoryFallback && d.history != nil && branch != "" {
		head, err := d.history.BranchHead(ctx, branch)
		if err != nil {
			return nil, fmt.Errorf("failed to read branch head: %w", err)
		}
		if head.Hash == previousKey {
			log.Infow("no open changes, branch head already built", "head", head.Hash)
			return &models.BuildChanges{
				RepositoryID: d.cfg.RepositoryID,
				RevisionKey:  previousKey,
				Commits:      []models.Commit{},
				Branch:       d.cfg.Branch,
				Outcome:      models.OutcomeNoCandidate,
			}, nil
		}
		log.Infow("no open changes, building branch head", "head", head.Hash)
		return &models.BuildChanges{
			RepositoryID: d.cfg.RepositoryID,
			RevisionKey:  head.Hash,
			Commits: []models.Commit{{
				ChangeSetID:          head.Hash,
				Author:               head.Author,
				Comment:              models.NoOpenChangesMessage,
				Date:                 head.When,
				CreationDate:         head.When,
				LastModificationDate: head.When,
				Branch:               branch,
			}},
			Branch:  d.cfg.Branch,
			Outcome: models.OutcomeNoCandidate,
		}, nil
	}

	log.Infow("no open changes")
	now := d.now()
	return &models.BuildChanges{
		RepositoryID: d.cfg.RepositoryID,
		RevisionKey:  previousKey,
		Commits: []models.Commit{{
			ChangeSetID:          previousKey,
			Author:               models.UnknownAuthor,
			Comment:              models.NoOpenChangesMessage,
			Date:                 now,
			CreationDate:         now,
			LastModificationDate: now,
			Branch:               branch,
		}},
		Branch:  d.cfg.Branch,
		Outcome: models.OutcomeNoCandidate,
	}, nil
}

// CollectChangesForRevision builds the change-set for a specific patch set revision
func (d *ChangeDetector) CollectChangesForRevision(ctx context.Context, revision string) (*models.BuildChanges, error) {
	change, err := d.client.QueryChangeByRevision(ctx, revision)
	if err != nil {
		return nil, fmt.Errorf("failed to collect changes for %s: %w", revision, err)
	}
	if change == nil {
		return nil, fmt.Errorf("revision %s: %w", revision, models.ErrChangeNotFound)
	}

	return &models.BuildChanges{
		RepositoryID: d.cfg.RepositoryID,
		RevisionKey:  change.LastRevision(),
		Commits:      []models.Commit{ConvertChangeToCommit(*change, true)},
		Branch:       d.cfg.Branch,
		ActualBranch: d.actualBranch(*change),
		Outcome:      models.OutcomeNewChange,
	}, nil
}

// actualBranch names the change's branch when it differs from the configured one
func (d *ChangeDetector) actualBranch(change models.Change) string {
	if change.Branch == d.cfg.Branch {
		return ""
	}
	return change.Branch
}

// OpenChanges returns the open changes in scope, ranked the way the detector picks them
func (d *ChangeDetector) OpenChanges(ctx context.Context, unverifiedOnly bool) ([]models.Change, error) {
	changes, err := d.client.QueryOpenChanges(ctx, d.cfg.Project, d.queryBranch())
	if err != nil {
		return nil, fmt.Errorf("failed to list open changes: %w", err)
	}
	if unverifiedOnly {
		return selector.AllUnverified(changes), nil
	}
	return selector.Rank(changes), nil
}

// ConvertChangeToCommit turns one patch set of a change into a build commit.
// useLast selects the current patch set, otherwise the lowest-numbered one is used.
func ConvertChangeToCommit(change models.Change, useLast bool) models.Commit {
	ps := change.CurrentPatchSet
	if !useLast {
		ps = change.FirstPatchSet()
	}

	author := change.Owner
	if ps.Author != nil && !ps.Author.IsZero() {
		author = *ps.Author
	}

	changed := ps.ChangedFiles()
	files := make([]models.CommitFile, 0, len(changed))
	for _, f := range changed {
		files = append(files, models.CommitFile{Path: f.Path, Revision: ps.Revision})
	}

	return models.Commit{
		ChangeSetID:          ps.Revision,
		Author:               author,
		Comment:              change.Subject,
		Date:                 ps.CreatedOn,
		CreationDate:         change.CreatedOn,
		LastModificationDate: change.LastUpdate,
		Branch:               change.Branch,
		Files:                files,
	}
}

// IsolateCommits splits a change-set into one change-set per commit, oldest first.
// Change-sets with at most one commit are returned as they are. Otherwise commits
// on other branches are dropped; commits without a branch are kept.
func IsolateCommits(changes models.BuildChanges) []models.BuildChanges {
	if len(changes.Commits) <= 1 {
		return []models.BuildChanges{changes}
	}

	target := changes.ActualBranch
	if target == "" {
		target = changes.Branch
	}

	var commits []models.Commit
	for _, c := range changes.Commits {
		if c.Branch == "" || target == "" || target == AllBranches || c.Branch == target {
			commits = append(commits, c)
		}
	}
	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].Date.Before(commits[j].Date)
	})

	isolated := make([]models.BuildChanges, 0, len(commits))
	for _, c := range commits {
		isolated = append(isolated, models.BuildChanges{
			RepositoryID: changes.RepositoryID,
			RevisionKey:  c.ChangeSetID,
			Commits:      []models.Commit{c},
			Branch:       changes.Branch,
			ActualBranch: changes.ActualBranch,
			Outcome:      changes.Outcome,
		})
	}
	return isolated
}
