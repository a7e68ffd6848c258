package config

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/npezzotti/go-santa/internal/draw"
	"github.com/sirupsen/logrus"
)

// MemoryDSN selects the in-process store instead of PostgreSQL.
const MemoryDSN = "memory"

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// DrawPolicy controls what happens around a room's draw.
type DrawPolicy struct {
	AllowRedraw   bool
	RetainResults bool
	MaxAttempts   int
}

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	AllowedOrigins []string
	PublicURL      string
	Draw           DrawPolicy
	OwnerFirst     bool
	Verbose        bool
	LogFormat      string
}

type Option func(*Config)

func WithPublicURL(publicURL string) Option {
	return func(c *Config) {
		c.PublicURL = strings.TrimSpace(publicURL)
	}
}

func WithDrawPolicy(p DrawPolicy) Option {
	return func(c *Config) {
		c.Draw = p
	}
}

// WithOwnerFirst lists the room owner first in snapshots instead of the
// requesting user.
func WithOwnerFirst(ownerFirst bool) Option {
	return func(c *Config) {
		c.OwnerFirst = ownerFirst
	}
}

func WithLogging(verbose bool, format string) Option {
	return func(c *Config) {
		c.Verbose = verbose
		c.LogFormat = strings.ToLower(strings.TrimSpace(format))
	}
}

func NewConfig(serverAddr, databaseDSN string, allowedOrigins []string, opts ...Option) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}

	cfg := &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		AllowedOrigins: allowedOrigins,
		Draw: DrawPolicy{
			RetainResults: true,
			MaxAttempts:   draw.DefaultMaxAttempts,
		},
		LogFormat: LogFormatText,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Draw.MaxAttempts < 1 {
		return nil, fmt.Errorf("max draw attempts must be at least 1, got %d", cfg.Draw.MaxAttempts)
	}
	if cfg.LogFormat != LogFormatText && cfg.LogFormat != LogFormatJSON {
		return nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}

	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://" + serverAddr
	}
	u, err := url.Parse(cfg.PublicURL)
	if err != nil {
		return nil, fmt.Errorf("parse public URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("public URL must be absolute, got %q", cfg.PublicURL)
	}

	return cfg, nil
}

func (c *Config) InMemory() bool {
	return c.DatabaseDSN == MemoryDSN
}

// NewLogger builds the process logger described by the config.
func (c *Config) NewLogger(out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	if c.LogFormat == LogFormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger.SetLevel(logrus.InfoLevel)
	if c.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	return logger
}
