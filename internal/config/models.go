package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ryo246912/gerrit-bridge/internal/bootstrap"
	"github.com/ryo246912/gerrit-bridge/internal/models"
	"github.com/ryo246912/gerrit-bridge/internal/sshauth"
	"github.com/ryo246912/gerrit-bridge/internal/store"
)

// AllProjects is the project holding server-wide configuration
const AllProjects = "All-Projects"

// Config holds application configuration.
type Config struct {
	Gerrit    GerritConfig    `mapstructure:"gerrit"`
	SSH       SSHConfig       `mapstructure:"ssh"`
	Git       GitConfig       `mapstructure:"git"`
	Store     StoreConfig     `mapstructure:"store"`
	Detect    DetectConfig    `mapstructure:"detect"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// GerritConfig locates the review server and the project under build.
type GerritConfig struct {
	Host           string        `mapstructure:"host" validate:"required"`
	Port           int           `mapstructure:"port" validate:"min=1,max=65535"`
	Project        string        `mapstructure:"project" validate:"required"`
	Branch         string        `mapstructure:"branch" validate:"required"`
	Username       string        `mapstructure:"username" validate:"required"`
	Email          string        `mapstructure:"email" validate:"omitempty,email"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// SSHConfig describes the identity and host key policy for both SSH channels.
type SSHConfig struct {
	KeyFile        string        `mapstructure:"key_file"`
	Key            string        `mapstructure:"key"`
	Passphrase     string        `mapstructure:"passphrase"`
	KnownHosts     string        `mapstructure:"known_hosts"`
	HostKeyPolicy  string        `mapstructure:"host_key_policy" validate:"oneof=strict hostname-insensitive insecure"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// GitConfig controls working copies.
type GitConfig struct {
	WorkingDir       string `mapstructure:"working_dir" validate:"required"`
	UseShallowClones bool   `mapstructure:"use_shallow_clones"`
	CommitterName    string `mapstructure:"committer_name"`
	CommitterEmail   string `mapstructure:"committer_email" validate:"omitempty,email"`
}

// StoreConfig selects the revision state backend.
type StoreConfig struct {
	Backend   string `mapstructure:"backend" validate:"oneof=memory file redis sqlite"`
	Path      string `mapstructure:"path"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// DetectConfig tunes change detection.
type DetectConfig struct {
	HistoryFallback bool `mapstructure:"history_fallback"`
}

// BootstrapConfig controls the one-time server configuration.
type BootstrapConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Patcher string `mapstructure:"patcher" validate:"oneof=text structured"`
}

// LoggingConfig contains logger preferences.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Validate checks field rules and the combinations they cannot express.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.SSH.Key == "" && c.SSH.KeyFile == "" {
		return errors.New("ssh.key or ssh.key_file is required")
	}
	if c.SSH.HostKeyPolicy != string(sshauth.PolicyInsecure) && c.SSH.KnownHosts == "" {
		return errors.New("ssh.known_hosts is required unless ssh.host_key_policy is insecure")
	}
	switch c.Store.Backend {
	case store.BackendFile, store.BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
		}
	case store.BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis backend")
		}
	}
	return nil
}

// Addr returns host:port of the review server's SSH daemon.
func (g GerritConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// RepositoryURL returns the SSH URL of the project repository.
func (c Config) RepositoryURL() string {
	return c.projectURL(c.Gerrit.Project)
}

// MetaConfigURL returns the SSH URL of the All-Projects repository.
func (c Config) MetaConfigURL() string {
	return c.projectURL(AllProjects)
}

func (c Config) projectURL(project string) string {
	return fmt.Sprintf("ssh://%s@%s:%d/%s", c.Gerrit.Username, c.Gerrit.Host, c.Gerrit.Port, project)
}

// SSHOptions maps the ssh section onto sshauth options.
func (c Config) SSHOptions() sshauth.Options {
	return sshauth.Options{
		User:          c.Gerrit.Username,
		KeyFile:       c.SSH.KeyFile,
		Key:           c.SSH.Key,
		Passphrase:    c.SSH.Passphrase,
		KnownHosts:    c.SSH.KnownHosts,
		HostKeyPolicy: sshauth.HostKeyPolicy(c.SSH.HostKeyPolicy),
		Timeout:       c.SSH.ConnectTimeout,
	}
}

// StoreOptions maps the store section onto store options.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		Backend:   c.Store.Backend,
		Path:      c.Store.Path,
		RedisAddr: c.Store.RedisAddr,
		RedisDB:   c.Store.RedisDB,
		KeyPrefix: c.Store.KeyPrefix,
	}
}

// Committer is the identity used for commits made by the bridge.
// The email may be empty, in which case bootstrap resolves it from the service account.
func (c Config) Committer() models.Identity {
	name := c.Git.CommitterName
	if name == "" {
		name = c.Gerrit.Username
	}
	email := c.Git.CommitterEmail
	if email == "" {
		email = c.Gerrit.Email
	}
	return models.Identity{Name: name, Username: c.Gerrit.Username, Email: email}
}

// ProjectDir is the working directory for project checkouts.
func (c Config) ProjectDir() string {
	return filepath.Join(c.Git.WorkingDir, c.Gerrit.Project)
}

// PatcherKind returns the configured meta-config patcher.
func (c Config) PatcherKind() bootstrap.Kind {
	return bootstrap.Kind(c.Bootstrap.Patcher)
}
