// Package config loads the process configuration from defaults, an
// optional config file, and PAGEMIRROR_* environment variables, in
// ascending precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the process reads at startup.
type Config struct {
	// Watched tree and remote endpoint.
	Root        string
	RemoteURL   string
	RemoteToken string

	// Listen is the address of the notification server; empty disables
	// it.
	Listen   string
	LogLevel string

	// Tree layout.
	Collections []string
	TrashDir    string
	DataDir     string
	ContentExt  string

	// Timing policy.
	PendingWindow        time.Duration
	DelayedRestoreWindow time.Duration
	PromotionSettle      time.Duration
	ContentSettle        time.Duration
	FolderCooldown       time.Duration
	MetadataCooldown     time.Duration
	ContentCooldown      time.Duration
	TombstoneTTL         time.Duration
	GateWindow           time.Duration

	// Mass-action gate.
	GateThreshold int
	GatePolicy    string
	AssumeYes     bool
}

// Load reads configuration. When file is non-empty it must exist and
// parse; otherwise the usual search paths are tried and a missing file
// is fine.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, envVar := range envMappings() {
		if err := v.BindEnv(key, envVar); err != nil {
			return nil, fmt.Errorf("bind %s: %w", envVar, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("pagemirror")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.pagemirror")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envMappings() map[string]string {
	return map[string]string{
		"Root":                 "PAGEMIRROR_ROOT",
		"RemoteURL":            "PAGEMIRROR_REMOTE_URL",
		"RemoteToken":          "PAGEMIRROR_REMOTE_TOKEN",
		"Listen":               "PAGEMIRROR_LISTEN",
		"LogLevel":             "PAGEMIRROR_LOG_LEVEL",
		"Collections":          "PAGEMIRROR_COLLECTIONS",
		"TrashDir":             "PAGEMIRROR_TRASH_DIR",
		"DataDir":              "PAGEMIRROR_DATA_DIR",
		"ContentExt":           "PAGEMIRROR_CONTENT_EXT",
		"PendingWindow":        "PAGEMIRROR_PENDING_WINDOW",
		"DelayedRestoreWindow": "PAGEMIRROR_DELAYED_RESTORE_WINDOW",
		"PromotionSettle":      "PAGEMIRROR_PROMOTION_SETTLE",
		"ContentSettle":        "PAGEMIRROR_CONTENT_SETTLE",
		"FolderCooldown":       "PAGEMIRROR_FOLDER_COOLDOWN",
		"MetadataCooldown":     "PAGEMIRROR_METADATA_COOLDOWN",
		"ContentCooldown":      "PAGEMIRROR_CONTENT_COOLDOWN",
		"TombstoneTTL":         "PAGEMIRROR_TOMBSTONE_TTL",
		"GateWindow":           "PAGEMIRROR_GATE_WINDOW",
		"GateThreshold":        "PAGEMIRROR_GATE_THRESHOLD",
		"GatePolicy":           "PAGEMIRROR_GATE_POLICY",
		"AssumeYes":            "PAGEMIRROR_ASSUME_YES",
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Root", ".")
	v.SetDefault("Listen", "")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("Collections", []string{"pages", "posts"})
	v.SetDefault("TrashDir", "_trash")
	v.SetDefault("DataDir", "_data")
	v.SetDefault("ContentExt", ".html")
	v.SetDefault("PendingWindow", 3*time.Second)
	v.SetDefault("DelayedRestoreWindow", time.Second)
	v.SetDefault("PromotionSettle", 2*time.Second)
	v.SetDefault("ContentSettle", time.Second)
	v.SetDefault("FolderCooldown", 3*time.Second)
	v.SetDefault("MetadataCooldown", 3*time.Second)
	v.SetDefault("ContentCooldown", 3*time.Second)
	v.SetDefault("TombstoneTTL", 30*time.Second)
	v.SetDefault("GateWindow", 500*time.Millisecond)
	v.SetDefault("GateThreshold", 5)
	v.SetDefault("GatePolicy", "prompt")
	v.SetDefault("AssumeYes", false)
}

func (c *Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.RemoteURL) == "" {
		missing = append(missing, "PAGEMIRROR_REMOTE_URL")
	}
	if strings.TrimSpace(c.RemoteToken) == "" {
		missing = append(missing, "PAGEMIRROR_REMOTE_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.GatePolicy {
	case "allow", "deny", "prompt":
	default:
		return fmt.Errorf("gate policy %q is not one of allow, deny, prompt", c.GatePolicy)
	}
	if c.GateThreshold < 1 {
		return fmt.Errorf("gate threshold %d must be at least 1", c.GateThreshold)
	}
	if len(c.Collections) == 0 {
		return fmt.Errorf("at least one collection is required")
	}
	return nil
}
