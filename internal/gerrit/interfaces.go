package gerrit

import (
	"context"

	"github.com/ryo246912/gerrit-bridge/internal/models"
)

// GerritClient defines the operations the bridge needs from the review server
type GerritClient interface {
	QueryOpenChanges(ctx context.Context, project, branch string) ([]models.Change, error)
	QueryChangeByID(ctx context.Context, id string) (*models.Change, error)
	QueryChangeByRevision(ctx context.Context, revision string) (*models.Change, error)
	VerifyChange(ctx context.Context, pass bool, changeNumber, patchNumber int, message string) (bool, error)
	Version(ctx context.Context) (string, error)
	ListProjects(ctx context.Context) ([]string, error)
	IsProject(ctx context.Context, name string) (bool, error)
	SystemUser(ctx context.Context, username string) (*models.SystemUser, error)
	TestConnection(ctx context.Context) error
}

// Ensure Client implements GerritClient interface
var _ GerritClient = (*Client)(nil)
