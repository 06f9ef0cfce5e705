// Package config loads and normalizes the daemon's JSON configuration file
// into the folder specs the supervisor runs on. Validation failures are fatal
// at load time; a config that parses is safe to hand to the rest of the
// system.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/smartfolder/smartfolder/internal/discovery"
	"github.com/smartfolder/smartfolder/internal/tools"
)

// ErrEnvVarNotAllowed means a $NAME token in the config referenced an
// environment variable outside the whitelist.
var ErrEnvVarNotAllowed = errors.New("environment variable not allowed in config")

// allowedEnvVars is the closed set of environment variables a config file may
// reference with $NAME tokens. Everything else is rejected so a config cannot
// exfiltrate arbitrary process environment into prompts or keys.
var allowedEnvVars = map[string]bool{
	"AI_GATEWAY_API_KEY": true,
	"SMARTFOLDER_HOME":   true,
	"HOME":               true,
	"USER":               true,
}

var envToken = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// AI is the normalized model settings block.
type AI struct {
	Provider     string
	Model        string
	APIKey       string
	Temperature  float64
	MaxToolCalls int
	DefaultTools []string
}

// Folder is one normalized watched-folder spec. In root-discovery mode the
// supervisor builds these from the global defaults plus each discovered
// smartfolder.md.
type Folder struct {
	Path         string
	Prompt       string
	Tools        []string
	Ignore       []string
	Debounce     time.Duration
	PollInterval time.Duration
	Env          map[string]string
	DryRun       bool
}

// Config is the normalized configuration. Exactly one of Folders and Roots is
// populated.
type Config struct {
	AI                AI
	Folders           []Folder
	Roots             []string
	DiscoveryInterval time.Duration
	// Defaults seed the folder specs built for discovered smart folders.
	Defaults Folder
}

// RootMode reports whether the config runs on discovered roots rather than a
// static folder list.
func (c *Config) RootMode() bool { return len(c.Roots) > 0 }

// The raw JSON shapes. Global defaults may be given either in the
// globalDefaults block or as top-level shorthand keys; the shorthand wins
// where both are present.
type fileConfig struct {
	AI              fileAI        `json:"ai"`
	Folders         []fileFolder  `json:"folders"`
	RootDirectories []string      `json:"rootDirectories"`
	GlobalDefaults  *fileDefaults `json:"globalDefaults"`

	Tools               []string          `json:"tools"`
	Ignore              []string          `json:"ignore"`
	DebounceMs          int               `json:"debounceMs"`
	PollIntervalMs      int               `json:"pollIntervalMs"`
	DiscoveryIntervalMs int               `json:"discoveryIntervalMs"`
	Env                 map[string]string `json:"env"`
	DryRun              bool              `json:"dryRun"`
}

type fileAI struct {
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	APIKey       string   `json:"apiKey"`
	Temperature  float64  `json:"temperature"`
	MaxToolCalls int      `json:"maxToolCalls"`
	DefaultTools []string `json:"defaultTools"`
}

type fileDefaults struct {
	Tools          []string          `json:"tools"`
	Ignore         []string          `json:"ignore"`
	DebounceMs     int               `json:"debounceMs"`
	PollIntervalMs int               `json:"pollIntervalMs"`
	Env            map[string]string `json:"env"`
	DryRun         *bool             `json:"dryRun"`
}

type fileFolder struct {
	Path           string            `json:"path"`
	Prompt         string            `json:"prompt"`
	Tools          []string          `json:"tools"`
	Ignore         []string          `json:"ignore"`
	DebounceMs     int               `json:"debounceMs"`
	PollIntervalMs int               `json:"pollIntervalMs"`
	Env            map[string]string `json:"env"`
	DryRun         *bool             `json:"dryRun"`
}

// Load reads, expands and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse normalizes raw JSON config bytes.
func Parse(data []byte) (*Config, error) {
	var f fileConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return normalize(&f)
}

func normalize(f *fileConfig) (*Config, error) {
	if err := expandFileEnv(f); err != nil {
		return nil, err
	}

	if len(f.Folders) > 0 && len(f.RootDirectories) > 0 {
		return nil, errors.New("config sets both folders and rootDirectories; pick one")
	}
	if len(f.Folders) == 0 && len(f.RootDirectories) == 0 {
		return nil, errors.New("config sets neither folders nor rootDirectories")
	}

	defaults, err := mergedDefaults(f)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AI: AI{
			Provider:     f.AI.Provider,
			Model:        f.AI.Model,
			APIKey:       f.AI.APIKey,
			Temperature:  f.AI.Temperature,
			MaxToolCalls: f.AI.MaxToolCalls,
			DefaultTools: f.AI.DefaultTools,
		},
		Defaults:          defaults,
		DiscoveryInterval: time.Duration(f.DiscoveryIntervalMs) * time.Millisecond,
	}
	if cfg.AI.MaxToolCalls < 0 {
		return nil, fmt.Errorf("ai.maxToolCalls must not be negative, got %d", cfg.AI.MaxToolCalls)
	}
	if err := checkTools(cfg.AI.DefaultTools); err != nil {
		return nil, fmt.Errorf("ai.defaultTools: %w", err)
	}

	for _, root := range f.RootDirectories {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolving root directory %q: %w", root, err)
		}
		cfg.Roots = append(cfg.Roots, abs)
	}

	for i, ff := range f.Folders {
		folder, err := normalizeFolder(ff, defaults, cfg.AI.DefaultTools)
		if err != nil {
			return nil, fmt.Errorf("folders[%d]: %w", i, err)
		}
		cfg.Folders = append(cfg.Folders, folder)
	}
	return cfg, nil
}

// mergedDefaults combines globalDefaults with the top-level shorthand keys.
func mergedDefaults(f *fileConfig) (Folder, error) {
	d := Folder{
		Tools:        f.Tools,
		Ignore:       f.Ignore,
		Debounce:     time.Duration(f.DebounceMs) * time.Millisecond,
		PollInterval: time.Duration(f.PollIntervalMs) * time.Millisecond,
		Env:          f.Env,
		DryRun:       f.DryRun,
	}
	if g := f.GlobalDefaults; g != nil {
		if d.Tools == nil {
			d.Tools = g.Tools
		}
		if d.Ignore == nil {
			d.Ignore = g.Ignore
		}
		if d.Debounce == 0 {
			d.Debounce = time.Duration(g.DebounceMs) * time.Millisecond
		}
		if d.PollInterval == 0 {
			d.PollInterval = time.Duration(g.PollIntervalMs) * time.Millisecond
		}
		if d.Env == nil {
			d.Env = g.Env
		}
		if !d.DryRun && g.DryRun != nil {
			d.DryRun = *g.DryRun
		}
	}
	if err := checkTools(d.Tools); err != nil {
		return Folder{}, fmt.Errorf("default tools: %w", err)
	}
	return d, nil
}

func normalizeFolder(ff fileFolder, defaults Folder, defaultTools []string) (Folder, error) {
	if ff.Path == "" {
		return Folder{}, errors.New("folder path is required")
	}
	abs, err := filepath.Abs(ff.Path)
	if err != nil {
		return Folder{}, fmt.Errorf("resolving folder path %q: %w", ff.Path, err)
	}
	prompt, _, err := discovery.ParsePrompt(ff.Prompt)
	if err != nil {
		return Folder{}, fmt.Errorf("prompt for %s: %w", abs, err)
	}

	folder := Folder{
		Path:         abs,
		Prompt:       prompt,
		Tools:        ff.Tools,
		Ignore:       ff.Ignore,
		Debounce:     time.Duration(ff.DebounceMs) * time.Millisecond,
		PollInterval: time.Duration(ff.PollIntervalMs) * time.Millisecond,
		Env:          ff.Env,
		DryRun:       defaults.DryRun,
	}
	if folder.Tools == nil {
		folder.Tools = defaults.Tools
	}
	if folder.Tools == nil {
		folder.Tools = defaultTools
	}
	if folder.Ignore == nil {
		folder.Ignore = defaults.Ignore
	}
	if folder.Debounce == 0 {
		folder.Debounce = defaults.Debounce
	}
	if folder.PollInterval == 0 {
		folder.PollInterval = defaults.PollInterval
	}
	if folder.Env == nil {
		folder.Env = defaults.Env
	}
	if ff.DryRun != nil {
		folder.DryRun = *ff.DryRun
	}
	if err := checkTools(folder.Tools); err != nil {
		return Folder{}, err
	}
	return folder, nil
}

func checkTools(names []string) error {
	if names == nil {
		return nil
	}
	known := map[string]bool{}
	for _, name := range tools.AllNames() {
		known[name] = true
	}
	for _, name := range names {
		if !known[name] {
			return fmt.Errorf("unknown tool %q", name)
		}
	}
	return nil
}

// expandFileEnv resolves $NAME tokens in every string value of the config
// against the whitelist.
func expandFileEnv(f *fileConfig) error {
	var err error
	expand := func(s string) string {
		if err != nil {
			return s
		}
		var out string
		out, err = ExpandEnv(s)
		return out
	}
	expandAll := func(ss []string) {
		for i := range ss {
			ss[i] = expand(ss[i])
		}
	}
	expandMap := func(m map[string]string) {
		for k, v := range m {
			m[k] = expand(v)
		}
	}

	f.AI.APIKey = expand(f.AI.APIKey)
	expandAll(f.Tools)
	expandAll(f.Ignore)
	expandMap(f.Env)
	if f.GlobalDefaults != nil {
		expandAll(f.GlobalDefaults.Tools)
		expandAll(f.GlobalDefaults.Ignore)
		expandMap(f.GlobalDefaults.Env)
	}
	for i := range f.Folders {
		f.Folders[i].Path = expand(f.Folders[i].Path)
		f.Folders[i].Prompt = expand(f.Folders[i].Prompt)
		expandAll(f.Folders[i].Tools)
		expandAll(f.Folders[i].Ignore)
		expandMap(f.Folders[i].Env)
	}
	expandAll(f.RootDirectories)
	return err
}

// ExpandEnv substitutes $NAME tokens from the process environment. Names
// outside the whitelist fail with ErrEnvVarNotAllowed.
func ExpandEnv(s string) (string, error) {
	var err error
	out := envToken.ReplaceAllStringFunc(s, func(tok string) string {
		name := tok[1:]
		if !allowedEnvVars[name] {
			if err == nil {
				err = fmt.Errorf("%w: $%s", ErrEnvVarNotAllowed, name)
			}
			return tok
		}
		return os.Getenv(name)
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
