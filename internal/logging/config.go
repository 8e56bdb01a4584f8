package logging

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/Noctocode/worken-ai/internal/config"
)

// Config describes the logger. FromSettings derives it from the service
// configuration; tests build it from NewDefaultConfig.
type Config struct {
	Level  zapcore.Level
	Format string // json or console

	Stdout bool
	// OTEL tees entries into the otelzap bridge when a provider is supplied.
	OTEL bool

	Sampling SamplingConfig

	Caller          bool
	StacktraceLevel zapcore.Level

	Service   string
	Redaction RedactionConfig
}

// SamplingConfig throttles repeated entries below error level.
type SamplingConfig struct {
	Enabled    bool
	Tick       time.Duration
	Initial    int
	Thereafter int
}

// RedactionConfig lists field keys whose values are always masked and
// value patterns masked wherever they appear.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

// maxPatternLen bounds operator-supplied redaction regexps.
const maxPatternLen = 200

// NewDefaultConfig returns JSON output to stdout at info level with
// credential redaction on.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Stdout: true,
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       time.Second,
			Initial:    100,
			Thereafter: 10,
		},
		Caller:          true,
		StacktraceLevel: zapcore.ErrorLevel,
		Service:         "worken",
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "api_key", "authorization",
				"bearer", "credential", "encryption_key", "openrouter_key",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)api[_-]?key[=:]\s*\S+`,
				`sk-or-[A-Za-z0-9-]{8,}`,
			},
		},
	}
}

// LevelFromString parses a level name; empty means info.
func LevelFromString(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// FromSettings builds a Config from the log section of the service config.
func FromSettings(s config.LogConfig, service string, otel bool) (*Config, error) {
	cfg := NewDefaultConfig()

	level, err := LevelFromString(s.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", s.Level, err)
	}
	cfg.Level = level
	if s.Format != "" {
		cfg.Format = s.Format
	}
	if service != "" {
		cfg.Service = service
	}
	cfg.OTEL = otel
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	if c.Format != "json" && c.Format != "console" {
		errs = append(errs, fmt.Errorf("format must be json or console, got %q", c.Format))
	}
	if !c.Stdout && !c.OTEL {
		errs = append(errs, errors.New("no log output enabled"))
	}
	if c.Sampling.Enabled && c.Sampling.Tick <= 0 {
		errs = append(errs, errors.New("sampling tick must be positive"))
	}
	if c.Redaction.Enabled {
		for _, p := range c.Redaction.Patterns {
			if _, err := compilePattern(p); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func compilePattern(p string) (*regexp.Regexp, error) {
	if len(p) > maxPatternLen {
		return nil, fmt.Errorf("redaction pattern longer than %d chars: %q", maxPatternLen, p)
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
	}
	return re, nil
}
