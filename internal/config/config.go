package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lorenzotomasdiez/summarize/internal/models"
)

const (
	DefaultRuns         = 2
	DefaultMinParams    = "27b"
	DefaultGroup        = "free"
	DefaultCooldown     = 60 * time.Second
	DefaultProbeTimeout = 60 * time.Second
)

// Settings is everything a refresh pass needs from the process environment.
// It is read once by FromEnv, then only changed by explicit flag overrides
// before Validate.
type Settings struct {
	APIKey       string        `validate:"required"`
	BaseURL      string        `validate:"omitempty,url"`
	ConfigPath   string        `validate:"required"`
	Group        string        `validate:"required"`
	Runs         int           `validate:"gte=0"`
	MinParams    string        `validate:"required"`
	Cooldown     time.Duration `validate:"gte=0"`
	ProbeTimeout time.Duration `validate:"gte=0"`
	OnShrink     ShrinkPolicy  `validate:"oneof=overwrite keep"`
}

// FromEnv reads settings from the environment without validating them, so
// callers can apply flag overrides first.
func FromEnv() (*Settings, error) {
	runs, err := envInt("SUMMARIZE_FREE_RUNS", DefaultRuns)
	if err != nil {
		return nil, err
	}
	cooldown, err := envDuration("SUMMARIZE_FREE_COOLDOWN", DefaultCooldown)
	if err != nil {
		return nil, err
	}
	probeTimeout, err := envDuration("SUMMARIZE_FREE_PROBE_TIMEOUT", DefaultProbeTimeout)
	if err != nil {
		return nil, err
	}

	onShrink, err := ParseShrinkPolicy(envString("SUMMARIZE_FREE_ON_SHRINK", string(ShrinkOverwrite)))
	if err != nil {
		return nil, err
	}

	configPath := os.Getenv("SUMMARIZE_CONFIG")
	if configPath == "" {
		configPath, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	return &Settings{
		APIKey:       strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
		BaseURL:      envString("OPENROUTER_BASE_URL", ""),
		ConfigPath:   configPath,
		Group:        DefaultGroup,
		Runs:         runs,
		MinParams:    envString("SUMMARIZE_FREE_MIN_PARAMS", DefaultMinParams),
		Cooldown:     cooldown,
		ProbeTimeout: probeTimeout,
		OnShrink:     onShrink,
	}, nil
}

// Validate checks struct tags and the parameter-size syntax.
func (s *Settings) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("config: %s", describe(verrs[0]))
		}
		return fmt.Errorf("config: %w", err)
	}
	if _, err := models.ParseMinParams(s.MinParams); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// MinParamsBillions returns the parsed size threshold.
func (s *Settings) MinParamsBillions() float64 {
	v, _ := models.ParseMinParams(s.MinParams)
	return v
}

func describe(fe validator.FieldError) string {
	switch fe.Field() {
	case "APIKey":
		return "OPENROUTER_API_KEY is required"
	case "Runs":
		return fmt.Sprintf("runs must be >= 0, got %v", fe.Value())
	case "OnShrink":
		return fmt.Sprintf("on-shrink must be one of overwrite, keep; got %q", fe.Value())
	case "Cooldown", "ProbeTimeout":
		return fmt.Sprintf("%s must not be negative, got %v", fe.Field(), fe.Value())
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s (value %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s (value %v)", fe.Field(), fe.Tag(), fe.Value())
}

// DefaultConfigPath is $HOME/.summarize/config.json.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".summarize", "config.json"), nil
}

func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: opening .env: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = unquote(strings.TrimSpace(val))
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
	return scanner.Err()
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s value %q: %w", key, s, err)
	}
	return v, nil
}

// envDuration accepts Go durations ("90s") or bare seconds ("90").
func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s value %q: %w", key, s, err)
	}
	return d, nil
}
