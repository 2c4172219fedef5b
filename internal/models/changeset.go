package models

import "time"

// Sentinels used when the review server has nothing open
const (
	NoOpenChangesMessage = "No open changes or patch sets found. Building the branch head."
	UnknownAuthorName    = "Unknown Author"
)

// UnknownAuthor is attached to synthetic commits
var UnknownAuthor = Identity{Name: UnknownAuthorName}

// Outcome tells the caller how a change-set was produced
type Outcome int

const (
	OutcomeNewChange Outcome = iota
	OutcomeDuplicate
	OutcomeNoCandidate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNewChange:
		return "new-change"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeNoCandidate:
		return "no-candidate"
	default:
		return "unknown"
	}
}

// CommitFile is a file entry inside a change-set commit
type CommitFile struct {
	Path     string `json:"path" yaml:"path"`
	Revision string `json:"revision" yaml:"revision"`
}

// Commit is one build-ready commit inside a change-set
type Commit struct {
	ChangeSetID          string       `json:"changesetId" yaml:"changesetId"`
	Author               Identity     `json:"author" yaml:"author"`
	Comment              string       `json:"comment" yaml:"comment"`
	Date                 time.Time    `json:"date" yaml:"date"`
	CreationDate         time.Time    `json:"creationDate" yaml:"creationDate"`
	LastModificationDate time.Time    `json:"lastModificationDate" yaml:"lastModificationDate"`
	Branch               string       `json:"branch,omitempty" yaml:"branch,omitempty"`
	Files                []CommitFile `json:"files,omitempty" yaml:"files,omitempty"`
}

// BuildChanges is what one detection call hands back to the CI server
type BuildChanges struct {
	RepositoryID string   `json:"repositoryId" yaml:"repositoryId"`
	RevisionKey  string   `json:"revisionKey" yaml:"revisionKey"`
	Commits      []Commit `json:"commits" yaml:"commits"`
	Branch       string   `json:"branch,omitempty" yaml:"branch,omitempty"`
	ActualBranch string   `json:"actualBranch,omitempty" yaml:"actualBranch,omitempty"`
	Outcome      Outcome  `json:"-" yaml:"-"`
}

// IsEmpty reports whether the change-set carries no commits
func (b BuildChanges) IsEmpty() bool {
	return len(b.Commits) == 0
}

// WorkingCopy describes a local checkout realized for a build
type WorkingCopy struct {
	RepositoryID string `json:"repositoryId"`
	Path         string `json:"path"`
	Branch       string `json:"branch,omitempty"`
	Revision     string `json:"revision"`
	Clean        bool   `json:"clean"`
	Merged       bool   `json:"merged"`
}

// CommitInfo is raw history information read from a local repository
type CommitInfo struct {
	Hash    string
	Message string
	Author  Identity
	When    time.Time
}

// SystemUser is the service account the bridge logs in as
type SystemUser struct {
	AccountID    int
	Username     string
	FullName     string
	Email        string
	Active       bool
	RegisteredOn time.Time
}
