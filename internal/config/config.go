package config

import (
	"time"

	"github.com/raoulx24/snaprotate/internal/snapshot"
)

type Config struct {
	Sets         []SetConfig    `yaml:"sets" validate:"required,min=1,dive"`
	Catalog      CatalogConfig  `yaml:"catalog"`
	Lock         LockConfig     `yaml:"lock"`
	Executor     ExecutorConfig `yaml:"executor"`
	Logging      LoggingConfig  `yaml:"logging"`
	HTTP         HTTPConfig     `yaml:"http"`
	ConfigReload ReloadConfig   `yaml:"configReload"`
}

type SetConfig struct {
	Name          string          `yaml:"name" validate:"required"`
	Roots         []string        `yaml:"roots" validate:"required,min=1,dive,required"`
	Excludes      []string        `yaml:"excludes"`
	Target        string          `yaml:"target" validate:"required"`
	LatestLink    string          `yaml:"latestLink"`
	Schedule      string          `yaml:"schedule"`      // cron, empty = manual only
	PruneSchedule string          `yaml:"pruneSchedule"` // cron, empty = prune after each snapshot
	Retention     RetentionConfig `yaml:"retention"`
}

type RetentionConfig struct {
	KeepLastN  *int            `yaml:"keepLastN" validate:"required,min=0"` // must be explicit, 0 wipes everything
	StaleAfter time.Duration   `yaml:"staleAfter"`                          // e.g. 24h, 0 = never prune pending
	Rules      []RetentionRule `yaml:"rules" validate:"dive"`
}

type RetentionRule struct {
	Name  string `yaml:"name" validate:"required"`
	Cron  string `yaml:"cron" validate:"required"`
	Count int    `yaml:"count" validate:"min=1"`
}

type CatalogConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory file badger"`
	Path    string `yaml:"path" validate:"required_unless=Backend memory"`
}

type LockConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

type ExecutorConfig struct {
	Kind      string        `yaml:"kind" validate:"oneof=rsync native"`
	RsyncPath string        `yaml:"rsyncPath"`
	Timeout   time.Duration `yaml:"timeout"` // 0 = no deadline
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // "info", "debug", etc.
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen" validate:"required_if=Enabled true"`
	// TriggerLimit caps POST requests per client and minute; 0 disables it.
	TriggerLimit int `yaml:"triggerLimit" validate:"min=0"`
}

type ReloadConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Method       string        `yaml:"method" validate:"omitempty,oneof=auto fsnotify poll"`
	PollInterval time.Duration `yaml:"pollInterval"`
	Debounce     time.Duration `yaml:"debounce"`
	Stability    time.Duration `yaml:"stability"` // file size must hold still this long before reloading
}

// Set returns the configuration of the named set.
func (c *Config) Set(name string) (SetConfig, bool) {
	for _, s := range c.Sets {
		if s.Name == name {
			return s, true
		}
	}
	return SetConfig{}, false
}

// BackupSet converts the configuration into the runtime model.
func (s SetConfig) BackupSet() snapshot.BackupSet {
	b := snapshot.NewBackupSet(s.Name, s.Target, s.Roots, s.Excludes)
	b.LatestLink = s.LatestLink
	return b
}
