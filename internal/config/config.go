// Package config loads the bridge configuration from a YAML file, a .env file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ryo246912/gerrit-bridge/internal/store"
	"github.com/spf13/viper"
)

const (
	envFile   = ".env"
	envPrefix = "GERRIT_BRIDGE"
)

// Load reads configuration from path (optional), .env and GERRIT_BRIDGE_* variables, then validates it
func Load(path string) (*Config, error) {
	v := viper.New()
	if envMap, err := godotenv.Read(envFile); err == nil {
		for k, val := range envMap {
			if _, exists := os.LookupEnv(k); !exists {
				_ = os.Setenv(k, val)
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvs(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Store.Path = defaultStorePath(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")

	v.SetDefault("gerrit.port", 29418)
	v.SetDefault("gerrit.branch", "master")
	v.SetDefault("gerrit.command_timeout", 30*time.Second)

	v.SetDefault("ssh.host_key_policy", "strict")
	v.SetDefault("ssh.connect_timeout", 10*time.Second)

	v.SetDefault("git.working_dir", "work")
	v.SetDefault("git.use_shallow_clones", false)

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.key_prefix", "gerrit-bridge")

	v.SetDefault("detect.history_fallback", false)

	v.SetDefault("bootstrap.enabled", true)
	v.SetDefault("bootstrap.patcher", "text")
}

// defaultStorePath keeps file-backed revision state under the working directory when no path is set
func defaultStorePath(cfg Config) string {
	if cfg.Store.Path != "" {
		return cfg.Store.Path
	}
	switch cfg.Store.Backend {
	case store.BackendFile:
		return filepath.Join(cfg.Git.WorkingDir, "revisions.yaml")
	case store.BackendSQLite:
		return filepath.Join(cfg.Git.WorkingDir, "revisions.db")
	default:
		return ""
	}
}

func bindEnvs(v *viper.Viper) {
	keys := []string{
		"logging.level",
		"gerrit.host",
		"gerrit.port",
		"gerrit.project",
		"gerrit.branch",
		"gerrit.username",
		"gerrit.email",
		"gerrit.command_timeout",
		"ssh.key_file",
		"ssh.key",
		"ssh.passphrase",
		"ssh.known_hosts",
		"ssh.host_key_policy",
		"ssh.connect_timeout",
		"git.working_dir",
		"git.use_shallow_clones",
		"git.committer_name",
		"git.committer_email",
		"store.backend",
		"store.path",
		"store.redis_addr",
		"store.redis_db",
		"store.key_prefix",
		"detect.history_fallback",
		"bootstrap.enabled",
		"bootstrap.patcher",
	}

	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}
