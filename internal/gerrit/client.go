package gerrit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ryo246912/gerrit-bridge/internal/models"
	"go.uber.org/zap"
)

const (
	queryCommand   = "gerrit query --format=JSON --current-patch-set --patch-sets --files "
	reviewCommand  = "gerrit review"
	versionCommand = "gerrit version"
	projectsCmd    = "gerrit ls-projects"
	gsqlCommand    = "gerrit gsql --format JSON -c "

	externalIDUsernamePrefix = "username:"
	registeredOnLayout       = "2006-01-02 15:04:05.000"
)

// Client talks to Gerrit over its SSH command channel
type Client struct {
	runner  Runner
	parser  *Parser
	log     *zap.SugaredLogger
	timeout time.Duration

	mu         sync.Mutex
	version    string
	systemUser *models.SystemUser
}

// NewClient creates a client. A zero timeout leaves commands bounded only by the caller's context.
func NewClient(runner Runner, timeout time.Duration, log *zap.SugaredLogger) *Client {
	c := &Client{
		runner:  runner,
		log:     log.Named("gerrit"),
		timeout: timeout,
	}
	c.parser = NewParser(c.log, c.cachedVersion)
	return c
}

// Parser exposes the client's parser so callers can observe the author downgrade
func (c *Client) Parser() *Parser {
	return c.parser
}

func (c *Client) run(ctx context.Context, command string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	c.log.Debugw("running command", "command", command)
	return c.runner.Run(ctx, command)
}

func (c *Client) query(ctx context.Context, terms ...string) ([]models.Change, error) {
	command := queryCommand + strings.Join(terms, " ")
	out, err := c.run(ctx, command)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return nil, &models.ProtocolError{Command: command, Detail: "query command failed", Err: err}
		}
		return nil, err
	}

	changes, err := c.parser.ParseQueryResponse(command, out)
	if err != nil {
		return nil, err
	}
	c.log.Infow("query finished", "query", strings.Join(terms, " "), "changes", len(changes))
	return changes, nil
}

// QueryOpenChanges returns the open changes of a project, optionally limited to one branch
func (c *Client) QueryOpenChanges(ctx context.Context, project, branch string) ([]models.Change, error) {
	terms := []string{"is:open"}
	if project != "" {
		terms = append(terms, "project:"+project)
	}
	if branch != "" {
		terms = append(terms, "branch:"+branch)
	}
	changes, err := c.query(ctx, terms...)
	if err != nil {
		return nil, fmt.Errorf("failed to query open changes: %w", err)
	}
	return changes, nil
}

// QueryChangeByID returns the change with the given Change-Id, or nil if the server knows none
func (c *Client) QueryChangeByID(ctx context.Context, id string) (*models.Change, error) {
	changes, err := c.query(ctx, "change:"+id)
	if err != nil {
		return nil, fmt.Errorf("failed to query change %s: %w", id, err)
	}
	return first(changes), nil
}

// QueryChangeByRevision returns the change owning a patch set revision, or nil
func (c *Client) QueryChangeByRevision(ctx context.Context, revision string) (*models.Change, error) {
	changes, err := c.query(ctx, "commit:"+revision)
	if err != nil {
		return nil, fmt.Errorf("failed to query revision %s: %w", revision, err)
	}
	return first(changes), nil
}

// VerifyChange sets the Verified label on a patch set.
// accepted reports whether the command channel accepted the review command.
func (c *Client) VerifyChange(ctx context.Context, pass bool, changeNumber, patchNumber int, message string) (bool, error) {
	vote := "-1"
	if pass {
		vote = "+1"
	}
	command := fmt.Sprintf("%s --message %s --label Verified=%s %d,%d",
		reviewCommand, shellQuote(message), vote, changeNumber, patchNumber)

	if _, err := c.run(ctx, command); err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			c.log.Warnw("review command rejected",
				"change", changeNumber,
				"patchset", patchNumber,
				"status", cmdErr.ExitStatus,
				"stderr", cmdErr.Stderr,
			)
			return false, nil
		}
		return false, fmt.Errorf("failed to verify change %d,%d: %w", changeNumber, patchNumber, err)
	}

	c.log.Infow("verification posted", "change", changeNumber, "patchset", patchNumber, "vote", vote)
	return true, nil
}

// Version returns the server version string, cached after the first success
func (c *Client) Version(ctx context.Context) (string, error) {
	if v := c.cachedVersion(); v != "" {
		return v, nil
	}
	out, err := c.run(ctx, versionCommand)
	if err != nil {
		return "", fmt.Errorf("failed to get server version: %w", err)
	}
	v := strings.TrimSpace(string(out))

	c.mu.Lock()
	c.version = v
	c.mu.Unlock()
	return v, nil
}

func (c *Client) cachedVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// ListProjects returns all project names visible to the account
func (c *Client) ListProjects(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, projectsCmd)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	var projects []string
	for _, line := range splitLines(out) {
		projects = append(projects, string(line))
	}
	return projects, nil
}

// IsProject reports whether name is a project on the server
func (c *Client) IsProject(ctx context.Context, name string) (bool, error) {
	projects, err := c.ListProjects(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range projects {
		if p == name {
			return true, nil
		}
	}
	return false, nil
}

// TestConnection checks that the channel is reachable and the account can log in
func (c *Client) TestConnection(ctx context.Context) error {
	c.mu.Lock()
	c.version = ""
	c.mu.Unlock()

	v, err := c.Version(ctx)
	if err != nil {
		return err
	}
	c.log.Infow("connection ok", "server_version", v)
	return nil
}

// SystemUser looks up the service account through gsql.
// This needs the accessDatabase global capability.
func (c *Client) SystemUser(ctx context.Context, username string) (*models.SystemUser, error) {
	c.mu.Lock()
	cached := c.systemUser
	c.mu.Unlock()
	if cached != nil && cached.Username == username {
		return cached, nil
	}

	extIDs, err := c.gsql(ctx, "select * from account_external_ids")
	if err != nil {
		return nil, fmt.Errorf("failed to read external ids: %w", err)
	}

	accountID := ""
	for _, row := range extIDs {
		if row["external_id"] == externalIDUsernamePrefix+username {
			accountID = row["account_id"]
			break
		}
	}
	if accountID == "" {
		return nil, &models.ProtocolError{
			Command: gsqlCommand,
			Detail:  fmt.Sprintf("account %q not visible, is the accessDatabase capability granted?", username),
		}
	}

	accounts, err := c.gsql(ctx, "select * from accounts")
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}

	user := &models.SystemUser{Username: username}
	user.AccountID, _ = strconv.Atoi(accountID)
	for _, row := range accounts {
		if row["account_id"] != accountID {
			continue
		}
		user.FullName = row["full_name"]
		user.Email = row["preferred_email"]
		user.Active = row["inactive"] == "N"
		if reg := row["registered_on"]; reg != "" {
			if t, err := time.Parse(registeredOnLayout, reg); err == nil {
				user.RegisteredOn = t
			} else {
				c.log.Debugw("unparseable registration date", "value", reg, "error", err)
			}
		}
		break
	}

	c.mu.Lock()
	c.systemUser = user
	c.mu.Unlock()
	return user, nil
}

type gsqlRecord struct {
	Type    string                     `json:"type"`
	Message string                     `json:"message"`
	Columns map[string]json.RawMessage `json:"columns"`
}

func (c *Client) gsql(ctx context.Context, statement string) ([]map[string]string, error) {
	command := gsqlCommand + shellQuote(statement)
	out, err := c.run(ctx, command)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return nil, &models.ProtocolError{Command: command, Detail: "gsql command failed", Err: err}
		}
		return nil, err
	}

	var rows []map[string]string
	for _, line := range splitLines(out) {
		var rec gsqlRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, &models.ProtocolError{Command: command, Detail: "undecodable gsql record", Err: err}
		}
		switch rec.Type {
		case "error":
			return nil, &models.ProtocolError{Command: command, Detail: "server error: " + rec.Message}
		case "row":
			row := make(map[string]string, len(rec.Columns))
			for k, v := range rec.Columns {
				row[k] = columnString(v)
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func columnString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	v := strings.TrimSpace(string(raw))
	if v == "null" {
		return ""
	}
	return v
}

func first(changes []models.Change) *models.Change {
	if len(changes) == 0 {
		return nil
	}
	c := changes[0]
	return &c
}
