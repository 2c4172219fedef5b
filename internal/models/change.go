package models

import (
	"fmt"
	"sort"
	"time"
)

// CommitMessageFile is the pseudo-file Gerrit attaches to every patch set
const CommitMessageFile = "/COMMIT_MSG"

// Change status values reported by Gerrit
const (
	StatusNew       = "NEW"
	StatusMerged    = "MERGED"
	StatusAbandoned = "ABANDONED"
)

// Identity represents a person known to the review server
type Identity struct {
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Email    string `json:"email,omitempty" yaml:"email,omitempty"`
}

// IsZero reports whether no field is set
func (i Identity) IsZero() bool {
	return i.Name == "" && i.Username == "" && i.Email == ""
}

func (i Identity) String() string {
	switch {
	case i.Name != "" && i.Email != "":
		return fmt.Sprintf("%s <%s>", i.Name, i.Email)
	case i.Name != "":
		return i.Name
	case i.Username != "":
		return i.Username
	default:
		return i.Email
	}
}

// Approval is a single label vote on a patch set
type Approval struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Value       int       `json:"value"`
	GrantedOn   time.Time `json:"grantedOn"`
	By          Identity  `json:"by"`
}

// FileSet describes one file touched by a patch set
type FileSet struct {
	Path       string `json:"file"`
	Type       string `json:"type"`
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
}

// PatchSet is one uploaded revision of a change
type PatchSet struct {
	Number    int        `json:"number"`
	Revision  string     `json:"revision"`
	Ref       string     `json:"ref"`
	Uploader  Identity   `json:"uploader"`
	Author    *Identity  `json:"author,omitempty"`
	CreatedOn time.Time  `json:"createdOn"`
	Approvals []Approval `json:"approvals,omitempty"`
	FileSets  []FileSet  `json:"files,omitempty"`
}

// ChangedFiles returns the file list without the commit message pseudo-file
func (p PatchSet) ChangedFiles() []FileSet {
	files := make([]FileSet, 0, len(p.FileSets))
	for _, f := range p.FileSets {
		if f.Path == CommitMessageFile {
			continue
		}
		files = append(files, f)
	}
	return files
}

// Change is an immutable snapshot of a Gerrit change as returned by a query
type Change struct {
	ID                string     `json:"id"`
	Number            int        `json:"number"`
	Project           string     `json:"project"`
	Branch            string     `json:"branch"`
	Subject           string     `json:"subject"`
	Owner             Identity   `json:"owner"`
	URL               string     `json:"url,omitempty"`
	CreatedOn         time.Time  `json:"createdOn"`
	LastUpdate        time.Time  `json:"lastUpdated"`
	Open              bool       `json:"open"`
	Status            string     `json:"status"`
	VerificationScore int        `json:"verificationScore"`
	ReviewScore       int        `json:"reviewScore"`
	CurrentPatchSet   PatchSet   `json:"currentPatchSet"`
	PatchSets         []PatchSet `json:"patchSets,omitempty"`
}

// LastRevision returns the revision of the current patch set
func (c Change) LastRevision() string {
	return c.CurrentPatchSet.Revision
}

// IsMerged reports whether the change has already been submitted
func (c Change) IsMerged() bool {
	return c.Status == StatusMerged
}

// IsVerified reports whether any Verified vote is recorded on the current patch set
func (c Change) IsVerified() bool {
	return c.VerificationScore != 0
}

// FirstPatchSet returns the lowest-numbered patch set, or the current one if
// the query did not include the full patch set list.
func (c Change) FirstPatchSet() PatchSet {
	if len(c.PatchSets) == 0 {
		return c.CurrentPatchSet
	}
	sets := make([]PatchSet, len(c.PatchSets))
	copy(sets, c.PatchSets)
	sort.SliceStable(sets, func(i, j int) bool { return sets[i].Number < sets[j].Number })
	return sets[0]
}
