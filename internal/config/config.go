// Package config loads broker configuration from environment variables
// with an optional YAML defaults file, following the layering used by
// dba/internal/config (YAML defaults) and scripts/vnc-proxy (getenv
// helpers) in the teacher monorepo.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in spec §6 plus the supplemental
// knobs SPEC_FULL.md adds (index mode, domain allowlist, noVNC).
type Config struct {
	// CDP candidate discovery (§4.1).
	VNCCDPURL         string   `yaml:"vnc_cdp_url"`
	BrowserUseCDPURL  string   `yaml:"browser_use_cdp_url"`
	CDPURL            string   `yaml:"cdp_url"`
	RequireSharedBrowser bool  `yaml:"require_shared_browser"`
	CDPCandidates     []string `yaml:"cdp_candidates"`

	DefaultURL        string        `yaml:"default_url"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	DefaultModel      string        `yaml:"default_model"`
	MaxSteps          int           `yaml:"max_steps"`

	// Session Manager (C8) agent-loop collaborator (spec §4.8).
	LLMEndpointURL string `yaml:"llm_endpoint_url"`
	LLMAPIKey      string `yaml:"llm_api_key"`

	NoVNCURL  string `yaml:"novnc_url"`
	NoVNCPort int    `yaml:"novnc_port"`

	// Supplemented features.
	IndexModeEnabled bool     `yaml:"index_mode_enabled"`
	AllowedDomains   []string `yaml:"allowed_domains"`

	// Executor retry policy (§4.7).
	MaxRetries    int           `yaml:"max_retries"`
	RetryBaseWait time.Duration `yaml:"retry_base_wait"`
	RetryMaxWait  time.Duration `yaml:"retry_max_wait"`
	RetryJitter   time.Duration `yaml:"retry_jitter"`

	// HTTP listeners.
	SessionServiceAddr   string `yaml:"session_service_addr"`
	AutomationServiceAddr string `yaml:"automation_service_addr"`

	RunsDir string `yaml:"runs_dir"`
}

// Default returns the hardcoded defaults the teacher repo's worker daemons
// fall back to when no env var or config file overrides them.
func Default() *Config {
	return &Config{
		CDPCandidates: []string{
			"http://127.0.0.1:9222",
			"http://localhost:9222",
			"http://vnc:9222",
		},
		DefaultURL:             "about:blank",
		NavigationTimeout:      30 * time.Second,
		DefaultModel:           "gpt-4o-mini",
		MaxSteps:               40,
		NoVNCPort:              6080,
		IndexModeEnabled:       true,
		MaxRetries:             3,
		RetryBaseWait:          500 * time.Millisecond,
		RetryMaxWait:           5 * time.Second,
		RetryJitter:            1 * time.Second,
		SessionServiceAddr:     ":8000",
		AutomationServiceAddr:  ":8001",
		RunsDir:                "runs",
	}
}

// Load builds the final Config: defaults, overlaid by an optional YAML
// file at path (if non-empty and present), overlaid by environment
// variables. Env vars always win, matching the teacher's layering.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := loadYAML(path, cfg); err != nil {
				return nil, fmt.Errorf("config: loading %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	expanded := expandEnvRefs(string(raw))
	return yaml.Unmarshal([]byte(expanded), cfg)
}

// envRefPattern matches ${VAR}-style references inside YAML scalar
// values, mirroring the convention documented on dba's MorphConfig.APIKey.
var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnvRefs(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := envRefPattern.FindStringSubmatch(m)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return m
	})
}

func applyEnv(cfg *Config) {
	cfg.VNCCDPURL = getenv("VNC_CDP_URL", cfg.VNCCDPURL)
	cfg.BrowserUseCDPURL = getenv("BROWSER_USE_CDP_URL", cfg.BrowserUseCDPURL)
	cfg.CDPURL = getenv("CDP_URL", cfg.CDPURL)
	cfg.RequireSharedBrowser = getenvBool("REQUIRE_SHARED_BROWSER", cfg.RequireSharedBrowser)
	cfg.DefaultURL = getenv("DEFAULT_URL", cfg.DefaultURL)
	cfg.NavigationTimeout = getenvDuration("NAVIGATION_TIMEOUT", cfg.NavigationTimeout)
	cfg.DefaultModel = getenv("DEFAULT_MODEL", cfg.DefaultModel)
	cfg.MaxSteps = getenvInt("MAX_STEPS", cfg.MaxSteps)
	cfg.LLMEndpointURL = getenv("LLM_ENDPOINT_URL", cfg.LLMEndpointURL)
	cfg.LLMAPIKey = getenv("LLM_API_KEY", cfg.LLMAPIKey)
	cfg.NoVNCURL = getenv("NOVNC_URL", cfg.NoVNCURL)
	cfg.NoVNCPort = getenvInt("NOVNC_PORT", cfg.NoVNCPort)
	cfg.IndexModeEnabled = getenvBool("INDEX_MODE", cfg.IndexModeEnabled)

	if v := os.Getenv("ALLOWED_DOMAINS"); v != "" {
		cfg.AllowedDomains = splitCSV(v)
	}
	cfg.SessionServiceAddr = getenv("SESSION_SERVICE_ADDR", cfg.SessionServiceAddr)
	cfg.AutomationServiceAddr = getenv("AUTOMATION_SERVICE_ADDR", cfg.AutomationServiceAddr)
	cfg.RunsDir = getenv("RUNS_DIR", cfg.RunsDir)
}

// CandidateList returns the ordered CDP endpoint candidates per §4.1's
// precedence: VNC_CDP_URL, BROWSER_USE_CDP_URL, CDP_URL, then the
// hardcoded/config defaults, de-duplicated.
func (c *Config) CandidateList() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}
	add(c.VNCCDPURL)
	add(c.BrowserUseCDPURL)
	add(c.CDPURL)
	for _, c := range c.CDPCandidates {
		add(c)
	}
	return out
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
