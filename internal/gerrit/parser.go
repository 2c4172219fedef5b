package gerrit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ryo246912/gerrit-bridge/internal/models"
	"go.uber.org/zap"
)

// Label names Gerrit has used for the two scores we track
var (
	verificationLabels = map[string]bool{"Verified": true, "VRIF": true}
	reviewLabels       = map[string]bool{"Code-Review": true, "CodeReview": true, "CRVW": true}
)

// flexInt accepts both JSON numbers and numeric strings ("1", "-1", "+1")
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", b, err)
	}
	*f = flexInt(n)
	return nil
}

type rawIdentity struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (r rawIdentity) identity() models.Identity {
	return models.Identity{Name: r.Name, Username: r.Username, Email: r.Email}
}

type rawApproval struct {
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Value       flexInt     `json:"value"`
	GrantedOn   flexInt     `json:"grantedOn"`
	By          rawIdentity `json:"by"`
}

type rawFile struct {
	File       string  `json:"file"`
	Type       string  `json:"type"`
	Insertions flexInt `json:"insertions"`
	Deletions  flexInt `json:"deletions"`
}

type rawPatchSet struct {
	Number    flexInt         `json:"number"`
	Revision  string          `json:"revision"`
	Ref       string          `json:"ref"`
	Uploader  rawIdentity     `json:"uploader"`
	Author    json.RawMessage `json:"author"`
	CreatedOn flexInt         `json:"createdOn"`
	Approvals []rawApproval   `json:"approvals"`
	Files     []rawFile       `json:"files"`
}

type rawChange struct {
	Project         string        `json:"project"`
	Branch          string        `json:"branch"`
	ID              string        `json:"id"`
	Number          flexInt       `json:"number"`
	Subject         string        `json:"subject"`
	Owner           rawIdentity   `json:"owner"`
	URL             string        `json:"url"`
	CreatedOn       flexInt       `json:"createdOn"`
	LastUpdated     flexInt       `json:"lastUpdated"`
	Open            bool          `json:"open"`
	Status          string        `json:"status"`
	CurrentPatchSet *rawPatchSet  `json:"currentPatchSet"`
	PatchSets       []rawPatchSet `json:"patchSets"`
}

// recordHeader holds the fields needed to classify one JSON line
type recordHeader struct {
	Type     string          `json:"type"`
	Message  string          `json:"message"`
	RowCount json.RawMessage `json:"rowCount"`
	Project  json.RawMessage `json:"project"`
}

// Parser turns query output into Change values.
// Once a record without a usable author is seen, author extraction stays off
// for the lifetime of the Parser.
type Parser struct {
	log             *zap.SugaredLogger
	authorSupported atomic.Bool
	serverVersion   func() string
}

// NewParser creates a parser with author extraction enabled.
// serverVersion is consulted only when logging the downgrade and may be nil.
func NewParser(log *zap.SugaredLogger, serverVersion func() string) *Parser {
	p := &Parser{log: log.Named("parser"), serverVersion: serverVersion}
	p.authorSupported.Store(true)
	return p
}

// AuthorSupported reports whether author identities are still being extracted
func (p *Parser) AuthorSupported() bool {
	return p.authorSupported.Load()
}

// ParseQueryResponse decodes the JSON lines of a "gerrit query" response
func (p *Parser) ParseQueryResponse(command string, out []byte) ([]models.Change, error) {
	lines := splitLines(out)
	if len(lines) == 0 {
		return nil, nil
	}

	var changes []models.Change
	statsSeen := false
	for i, line := range lines {
		var head recordHeader
		if err := json.Unmarshal(line, &head); err != nil {
			return nil, &models.ProtocolError{Command: command, Detail: fmt.Sprintf("undecodable record on line %d", i+1), Err: err}
		}

		switch head.Type {
		case "error":
			return nil, &models.ProtocolError{Command: command, Detail: "server error: " + head.Message}
		case "stats":
			if i != len(lines)-1 {
				return nil, &models.ProtocolError{Command: command, Detail: "stats record is not the last record"}
			}
			count, err := parseRowCount(head.RowCount)
			if err != nil {
				return nil, &models.ProtocolError{Command: command, Detail: "invalid rowCount", Err: err}
			}
			p.log.Debugw("query stats", "rowCount", count)
			if count == 0 {
				return nil, nil
			}
			statsSeen = true
		default:
			if len(head.Project) == 0 {
				continue
			}
			change, err := p.ParseChange(line)
			if err != nil {
				return nil, &models.ProtocolError{Command: command, Detail: fmt.Sprintf("malformed change on line %d", i+1), Err: err}
			}
			changes = append(changes, *change)
		}
	}

	if !statsSeen {
		return nil, &models.ProtocolError{Command: command, Detail: "missing stats record"}
	}
	return changes, nil
}

// ParseChange decodes a single change record
func (p *Parser) ParseChange(data []byte) (*models.Change, error) {
	var raw rawChange
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode change: %w", err)
	}
	if raw.CurrentPatchSet == nil {
		return nil, fmt.Errorf("change %s has no current patch set", raw.ID)
	}

	change := &models.Change{
		ID:         raw.ID,
		Number:     int(raw.Number),
		Project:    raw.Project,
		Branch:     raw.Branch,
		Subject:    raw.Subject,
		Owner:      raw.Owner.identity(),
		URL:        raw.URL,
		CreatedOn:  epoch(raw.CreatedOn),
		LastUpdate: epoch(raw.LastUpdated),
		Open:       raw.Open,
		Status:     raw.Status,
	}

	change.CurrentPatchSet = p.patchSet(raw.ID, *raw.CurrentPatchSet)
	for _, a := range change.CurrentPatchSet.Approvals {
		switch {
		case verificationLabels[a.Type]:
			change.VerificationScore += a.Value
		case reviewLabels[a.Type]:
			change.ReviewScore += a.Value
		}
	}

	for _, ps := range raw.PatchSets {
		change.PatchSets = append(change.PatchSets, p.patchSet(raw.ID, ps))
	}
	return change, nil
}

func (p *Parser) patchSet(changeID string, raw rawPatchSet) models.PatchSet {
	ps := models.PatchSet{
		Number:    int(raw.Number),
		Revision:  raw.Revision,
		Ref:       raw.Ref,
		Uploader:  raw.Uploader.identity(),
		CreatedOn: epoch(raw.CreatedOn),
	}

	if p.authorSupported.Load() {
		author, err := decodeAuthor(raw.Author)
		if err != nil {
			p.disableAuthor(changeID, err)
		} else {
			ps.Author = author
		}
	}

	for _, a := range raw.Approvals {
		ps.Approvals = append(ps.Approvals, models.Approval{
			Type:        a.Type,
			Description: a.Description,
			Value:       int(a.Value),
			GrantedOn:   epoch(a.GrantedOn),
			By:          a.By.identity(),
		})
	}

	for _, f := range raw.Files {
		if f.File == models.CommitMessageFile {
			continue
		}
		ps.FileSets = append(ps.FileSets, models.FileSet{
			Path:       f.File,
			Type:       f.Type,
			Insertions: int(f.Insertions),
			Deletions:  int(f.Deletions),
		})
	}
	return ps
}

func (p *Parser) disableAuthor(changeID string, cause error) {
	if !p.authorSupported.CompareAndSwap(true, false) {
		return
	}
	version := "unknown"
	if p.serverVersion != nil {
		if v := p.serverVersion(); v != "" {
			version = v
		}
	}
	p.log.Errorw("author not supported by server, disabling author lookup",
		"change", changeID,
		"server_version", version,
		"error", cause,
	)
}

func decodeAuthor(raw json.RawMessage) (*models.Identity, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("author field is absent")
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("author field is not an object")
	}
	var id rawIdentity
	if err := json.Unmarshal(trimmed, &id); err != nil {
		return nil, fmt.Errorf("failed to decode author: %w", err)
	}
	identity := id.identity()
	return &identity, nil
}

func parseRowCount(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("rowCount is missing")
	}
	var n flexInt
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative rowCount %d", n)
	}
	return int(n), nil
}

func epoch(sec flexInt) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0).UTC()
}

func splitLines(out []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(out, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}
