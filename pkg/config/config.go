// Package config loads the engine configuration from an optional YAML file,
// a .env file and LOCALCIRCLE_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"github.com/mudler/xlog"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const envPrefix = "LOCALCIRCLE_"

type Config struct {
	Model   Model   `yaml:"model"`
	Storage Storage `yaml:"storage"`
	Lock    Lock    `yaml:"lock"`
	Tick    Tick    `yaml:"tick"`
	CatchUp CatchUp `yaml:"catchup"`
	Intel   Intel   `yaml:"intel"`
	History History `yaml:"history"`
	Pacing  Pacing  `yaml:"pacing"`
	Server  Server  `yaml:"server"`
}

type Model struct {
	Provider    string        `yaml:"provider"`
	APIURL      string        `yaml:"api_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float32       `yaml:"temperature"`
}

type Storage struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type Lock struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type Tick struct {
	Schedule               string        `yaml:"schedule"`
	PrivateWakeProbability float64       `yaml:"private_wake_probability"`
	GroupWakeProbability   float64       `yaml:"group_wake_probability"`
	MaxPrivateWakes        int           `yaml:"max_private_wakes"`
	BlockCooldown          time.Duration `yaml:"block_cooldown"`
}

type CatchUp struct {
	Threshold        time.Duration `yaml:"threshold"`
	SummaryRetention time.Duration `yaml:"summary_retention"`
	RetentionCron    string        `yaml:"retention_cron"`
	MaxEvents        int           `yaml:"max_events"`
}

type Intel struct {
	Cooldown          time.Duration `yaml:"cooldown"`
	AffinityThreshold int           `yaml:"affinity_threshold"`
	ScanRange         int           `yaml:"scan_range"`
	MaxHits           int           `yaml:"max_hits"`
	SnippetRadius     int           `yaml:"snippet_radius"`
}

type History struct {
	MaxMessages int `yaml:"max_messages"`
}

type Pacing struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

type Server struct {
	Listen  string   `yaml:"listen"`
	APIKeys []string `yaml:"api_keys"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Model: Model{
			Provider:    "openai",
			APIURL:      "http://localhost:8080/v1",
			Timeout:     5 * time.Minute,
			Temperature: 0.7,
		},
		Storage: Storage{
			Driver:   "memory",
			Path:     "localcircle.db",
			URI:      "mongodb://localhost:27017",
			Database: "localcircle",
		},
		Lock: Lock{
			PollInterval: 100 * time.Millisecond,
			Timeout:      2 * time.Second,
		},
		Tick: Tick{
			Schedule:               "@every 60s",
			PrivateWakeProbability: 0.3,
			GroupWakeProbability:   0.15,
			MaxPrivateWakes:        2,
			BlockCooldown:          time.Hour,
		},
		CatchUp: CatchUp{
			Threshold:        time.Hour,
			SummaryRetention: 7 * 24 * time.Hour,
			RetentionCron:    "0 3 * * 0",
			MaxEvents:        3,
		},
		Intel: Intel{
			Cooldown:          5 * time.Minute,
			AffinityThreshold: 40,
			ScanRange:         50,
			MaxHits:           5,
			SnippetRadius:     30,
		},
		History: History{MaxMessages: 500},
		Pacing: Pacing{
			Min: 500 * time.Millisecond,
			Max: 1200 * time.Millisecond,
		},
		Server: Server{Listen: ":3000"},
	}
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Load reads path (which may be empty or missing), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		xlog.Warn("Could not load .env file", "error", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			xlog.Info("Config file not found, using defaults", "path", path)
		case err != nil:
			return cfg, fmt.Errorf("loading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("loading config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.strVar("MODEL_PROVIDER", &c.Model.Provider)
	e.strVar("LLM_API_URL", &c.Model.APIURL)
	e.strVar("LLM_API_KEY", &c.Model.APIKey)
	e.strVar("MODEL", &c.Model.Model)
	e.durationVar("TIMEOUT", &c.Model.Timeout)
	e.float32Var("TEMPERATURE", &c.Model.Temperature)

	e.strVar("STORAGE_DRIVER", &c.Storage.Driver)
	e.strVar("STATE_DIR", &c.Storage.Path)
	e.strVar("MONGO_URI", &c.Storage.URI)
	e.strVar("MONGO_DATABASE", &c.Storage.Database)

	e.durationVar("LOCK_POLL_INTERVAL", &c.Lock.PollInterval)
	e.durationVar("LOCK_TIMEOUT", &c.Lock.Timeout)

	e.strVar("TICK_SCHEDULE", &c.Tick.Schedule)
	e.floatVar("PRIVATE_WAKE_PROBABILITY", &c.Tick.PrivateWakeProbability)
	e.floatVar("GROUP_WAKE_PROBABILITY", &c.Tick.GroupWakeProbability)
	e.intVar("MAX_PRIVATE_WAKES", &c.Tick.MaxPrivateWakes)
	e.durationVar("BLOCK_COOLDOWN", &c.Tick.BlockCooldown)

	e.durationVar("CATCHUP_THRESHOLD", &c.CatchUp.Threshold)
	e.durationVar("SUMMARY_RETENTION", &c.CatchUp.SummaryRetention)
	e.strVar("RETENTION_CRON", &c.CatchUp.RetentionCron)
	e.intVar("CATCHUP_MAX_EVENTS", &c.CatchUp.MaxEvents)

	e.durationVar("INTEL_COOLDOWN", &c.Intel.Cooldown)
	e.intVar("INTEL_AFFINITY_THRESHOLD", &c.Intel.AffinityThreshold)

	e.intVar("MAX_HISTORY", &c.History.MaxMessages)

	e.durationVar("PACING_MIN", &c.Pacing.Min)
	e.durationVar("PACING_MAX", &c.Pacing.Max)

	e.strVar("LISTEN", &c.Server.Listen)
	if v, ok := e.get("API_KEYS"); ok {
		c.Server.APIKeys = strings.Split(v, ",")
	}

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(name string) (string, bool) {
	v, ok := e.lookup(envPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(name string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
}

func (e *envReader) strVar(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) durationVar(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, err)
		return
	}
	*dst = d
}

func (e *envReader) intVar(name string, dst *int) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, err)
		return
	}
	*dst = n
}

func (e *envReader) floatVar(name string, dst *float64) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(name, err)
		return
	}
	*dst = f
}

func (e *envReader) float32Var(name string, dst *float32) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		e.fail(name, err)
		return
	}
	*dst = float32(f)
}

// Validate reports every problem at once as a *ValidationError.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Model.Provider {
	case "openai":
		if c.Model.APIURL == "" {
			add("model.api_url is required for the openai provider")
		}
	case "gemini":
		if c.Model.APIKey == "" {
			add("model.api_key is required for the gemini provider")
		}
	default:
		add("model.provider %q is not one of openai, gemini", c.Model.Provider)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		add("model.temperature %v is outside [0, 2]", c.Model.Temperature)
	}

	switch c.Storage.Driver {
	case "memory":
	case "pebble":
		if c.Storage.Path == "" {
			add("storage.path is required for the pebble driver")
		}
	case "mongo":
		if c.Storage.URI == "" || c.Storage.Database == "" {
			add("storage.uri and storage.database are required for the mongo driver")
		}
	default:
		add("storage.driver %q is not one of memory, pebble, mongo", c.Storage.Driver)
	}

	if c.Lock.PollInterval <= 0 {
		add("lock.poll_interval must be positive")
	}
	if c.Lock.Timeout < c.Lock.PollInterval {
		add("lock.timeout must be at least lock.poll_interval")
	}

	if _, err := cron.ParseStandard(c.Tick.Schedule); err != nil {
		add("tick.schedule %q: %v", c.Tick.Schedule, err)
	}
	for name, p := range map[string]float64{
		"tick.private_wake_probability": c.Tick.PrivateWakeProbability,
		"tick.group_wake_probability":   c.Tick.GroupWakeProbability,
	} {
		if p < 0 || p > 1 {
			add("%s %v is outside [0, 1]", name, p)
		}
	}
	if c.Tick.MaxPrivateWakes < 0 {
		add("tick.max_private_wakes must not be negative")
	}
	if c.Tick.BlockCooldown <= 0 {
		add("tick.block_cooldown must be positive")
	}

	if c.CatchUp.Threshold <= 0 {
		add("catchup.threshold must be positive")
	}
	if c.CatchUp.SummaryRetention <= 0 {
		add("catchup.summary_retention must be positive")
	}
	if !gronx.New().IsValid(c.CatchUp.RetentionCron) {
		add("catchup.retention_cron %q is not a valid cron expression", c.CatchUp.RetentionCron)
	}
	if c.CatchUp.MaxEvents < 1 {
		add("catchup.max_events must be at least 1")
	}

	if c.Intel.Cooldown < 0 {
		add("intel.cooldown must not be negative")
	}
	if c.Intel.ScanRange < 1 || c.Intel.MaxHits < 1 || c.Intel.SnippetRadius < 1 {
		add("intel.scan_range, intel.max_hits and intel.snippet_radius must be positive")
	}

	if c.History.MaxMessages < 1 {
		add("history.max_messages must be at least 1")
	}
	if c.Pacing.Min < 0 || c.Pacing.Max < c.Pacing.Min {
		add("pacing.min must not be negative or above pacing.max")
	}
	if c.Server.Listen == "" {
		add("server.listen is required")
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return &ValidationError{Problems: problems}
}
