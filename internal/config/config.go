// Package config loads noeta's configuration: a JSON file under
// <workspace>/.noeta/config.json, overlaid with NOETA_* environment
// variables. Grounded on the teacher's internal/config/config.go
// (DefaultConfig/Load/Save/applyEnvOverrides shape), adapted from the
// teacher's provider-API-key fields to spec.md §6.5's recognized options.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"noeta/internal/tms"
)

// KBConfig holds knowledge-base capacity tunables.
type KBConfig struct {
	GlobalCapacity int `json:"global_capacity" yaml:"global_capacity"`
	NoteCapacity   int `json:"note_capacity" yaml:"note_capacity"`
}

// ReasoningConfig holds reasoner tunables.
type ReasoningConfig struct {
	DepthLimit               int    `json:"depth_limit" yaml:"depth_limit"`
	BroadcastInputAssertions bool   `json:"broadcast_input_assertions" yaml:"broadcast_input_assertions"`
	ContradictionPolicy      string `json:"contradiction_policy" yaml:"contradiction_policy"` // prefer_old | prefer_new | flag_both
}

// QueryConfig holds query-engine tunables.
type QueryConfig struct {
	TimeoutMs int `json:"timeout_ms" yaml:"timeout_ms"`
}

// TransportConfig holds the WebSocket/static-file server's bind settings.
type TransportConfig struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	StaticDir  string `json:"static_dir" yaml:"static_dir"`
}

// PersistenceConfig selects and configures the snapshot backing store.
type PersistenceConfig struct {
	Backend            string `json:"backend" yaml:"backend"` // "json" or "sqlite"
	Path               string `json:"path" yaml:"path"`
	SQLiteRowThreshold int    `json:"sqlite_row_threshold" yaml:"sqlite_row_threshold"`
}

// LoggingConfig is loaded, overridden and saved with the rest of the
// configuration; the category-file logger does not read it (cmd/noeta
// switches that logger on with --verbose).
type LoggingConfig struct {
	DebugMode bool   `json:"debug_mode" yaml:"debug_mode"`
	Dir       string `json:"dir" yaml:"dir"`
}

// Config aggregates every recognized option (spec.md §6.5) into
// component sub-structs, the way the teacher's Config aggregates LLM,
// Embedding, Integrations, and Memory sub-structs.
type Config struct {
	KB          KBConfig          `json:"kb" yaml:"kb"`
	Reasoning   ReasoningConfig   `json:"reasoning" yaml:"reasoning"`
	Query       QueryConfig       `json:"query" yaml:"query"`
	Transport   TransportConfig   `json:"transport" yaml:"transport"`
	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
}

// DefaultConfig returns spec.md §6.5's documented defaults.
func DefaultConfig() Config {
	return Config{
		KB: KBConfig{GlobalCapacity: 65536, NoteCapacity: 4096},
		Reasoning: ReasoningConfig{
			DepthLimit:               4,
			BroadcastInputAssertions: false,
			ContradictionPolicy:      "prefer_old",
		},
		Query:       QueryConfig{TimeoutMs: 60000},
		Transport:   TransportConfig{ListenAddr: ":8421", StaticDir: ""},
		Persistence: PersistenceConfig{Backend: "json", Path: ".noeta/snapshot.json", SQLiteRowThreshold: 100000},
		Logging:     LoggingConfig{DebugMode: false, Dir: ".noeta/logs"},
	}
}

// WorkspaceDir returns <cwd>/.noeta, creating it implicitly only on Save.
func WorkspaceDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, ".noeta"), nil
}

// ConfigFile returns the full path to config.json.
func ConfigFile() (string, error) {
	dir, err := WorkspaceDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads config.json if present, overlays a hand-edited
// .noeta/config.yaml if present (grounded on the teacher's sole
// yaml.Unmarshal-onto-defaults config load — kept here as an optional
// human-editable override layer on top of the JSON file spec.md §6.5
// treats as canonical), then applies environment overrides.
func Load() (Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigFile()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	if err := cfg.applyYAMLOverrides(); err != nil {
		return cfg, err
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyYAMLOverrides merges <workspace>/.noeta/config.yaml onto cfg, if
// present. A missing file is not an error.
func (c *Config) applyYAMLOverrides() error {
	dir, err := WorkspaceDir()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Save writes cfg to <workspace>/.noeta/config.json, creating the
// directory if needed.
func Save(cfg Config) error {
	dir, err := WorkspaceDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path, err := ConfigFile()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides overlays NOETA_* environment variables on top of
// whatever was loaded from JSON (or defaults), grounded on the teacher's
// applyEnvOverrides precedence-chase pattern — each override only takes
// effect when its environment variable is actually set.
func (c *Config) applyEnvOverrides() {
	if v, ok := os.LookupEnv("NOETA_GLOBAL_KB_CAPACITY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.KB.GlobalCapacity = n
		}
	}
	if v, ok := os.LookupEnv("NOETA_NOTE_KB_CAPACITY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.KB.NoteCapacity = n
		}
	}
	if v, ok := os.LookupEnv("NOETA_REASONING_DEPTH_LIMIT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Reasoning.DepthLimit = n
		}
	}
	if v, ok := os.LookupEnv("NOETA_BROADCAST_INPUT_ASSERTIONS"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Reasoning.BroadcastInputAssertions = b
		}
	}
	if v, ok := os.LookupEnv("NOETA_CONTRADICTION_POLICY"); ok {
		c.Reasoning.ContradictionPolicy = v
	}
	if v, ok := os.LookupEnv("NOETA_QUERY_TIMEOUT_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Query.TimeoutMs = n
		}
	}
	if v, ok := os.LookupEnv("NOETA_LISTEN_ADDR"); ok {
		c.Transport.ListenAddr = v
	}
	if v, ok := os.LookupEnv("NOETA_STATIC_DIR"); ok {
		c.Transport.StaticDir = v
	}
	if v, ok := os.LookupEnv("NOETA_PERSISTENCE_BACKEND"); ok {
		c.Persistence.Backend = v
	}
	if v, ok := os.LookupEnv("NOETA_PERSISTENCE_PATH"); ok {
		c.Persistence.Path = v
	}
	if v, ok := os.LookupEnv("NOETA_DEBUG"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
}

// ContradictionPolicy maps the JSON/env string onto tms.ContradictionPolicy,
// defaulting to PreferOld for an unrecognized value.
func (c Config) ContradictionPolicy() tms.ContradictionPolicy {
	switch c.Reasoning.ContradictionPolicy {
	case "prefer_new":
		return tms.PreferNew
	case "flag_both":
		return tms.FlagBoth
	default:
		return tms.PreferOld
	}
}
