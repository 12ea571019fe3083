package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ModeStdio  = "stdio"
	ModeServer = "server"

	DefaultPort            = 8080
	DefaultHost            = "127.0.0.1"
	DefaultLogLevel        = "info"
	DefaultMaxFileSize     = 100 * 1024 * 1024 // 100MB
	DefaultConfidenceFloor = 0.5
	DefaultMaxLabelGap     = 120.0
	DefaultCacheSize       = 64

	DefaultDirPerm = 0o750

	// EnvPrefix is prepended to every environment variable
	EnvPrefix = "FIELDSTAMP"
)

// ErrVersionRequested is returned by LoadFromFlags when --version is given
var ErrVersionRequested = errors.New("version requested")

var logLevels = []string{"debug", "info", "warn", "error"}

// Config holds all configuration for the field stamping server
type Config struct {
	// Transport
	Mode string // ModeStdio or ModeServer
	Host string
	Port int

	// Templates and stamped output
	TemplateDirectory string
	OutputDirectory   string // defaults to TemplateDirectory
	MaxFileSize       int64  // bytes

	// Detection
	ConfidenceFloor float64
	MaxLabelGap     float64 // points
	CacheSize       int     // detection results kept in memory

	Version    string
	ServerName string
	LogLevel   string
}

// DefaultConfig returns the configuration used when nothing is overridden.
// Templates are read from the working directory.
func DefaultConfig() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	return &Config{
		Mode:              ModeStdio,
		Host:              DefaultHost,
		Port:              DefaultPort,
		TemplateDirectory: wd,
		MaxFileSize:       DefaultMaxFileSize,
		ConfidenceFloor:   DefaultConfidenceFloor,
		MaxLabelGap:       DefaultMaxLabelGap,
		CacheSize:         DefaultCacheSize,
		Version:           "1.0.0",
		ServerName:        "mcp-pdf-fieldstamp",
		LogLevel:          DefaultLogLevel,
	}
}

// setting ties one configuration key to its flag, its environment variable
// and the Config field it fills.
type setting struct {
	key   string
	usage string
	env   string
	flag  func(fs *pflag.FlagSet, cfg *Config)
	read  func(cfg *Config)
}

func settings() []setting {
	return []setting{
		{
			key: "mode", env: "Server mode",
			usage: "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP (SSE) server",
			flag:  func(fs *pflag.FlagSet, c *Config) { fs.String("mode", c.Mode, "") },
			read:  func(c *Config) { c.Mode = viper.GetString("mode") },
		},
		{
			key: "host", env: "Server host", usage: "Server host address (server mode only)",
			flag: func(fs *pflag.FlagSet, c *Config) { fs.String("host", c.Host, "") },
			read: func(c *Config) { c.Host = viper.GetString("host") },
		},
		{
			key: "port", env: "Server port", usage: "Server port (server mode only)",
			flag: func(fs *pflag.FlagSet, c *Config) { fs.Int("port", c.Port, "") },
			read: func(c *Config) { c.Port = viper.GetInt("port") },
		},
		{
			key: "dir", env: "Template directory", usage: "Directory containing PDF templates and their profiles",
			flag: func(fs *pflag.FlagSet, c *Config) { fs.String("dir", c.TemplateDirectory, "") },
			read: func(c *Config) { c.TemplateDirectory = absPath(viper.GetString("dir")) },
		},
		{
			key: "outdir", env: "Output directory", usage: "Directory for stamped output (defaults to --dir)",
			flag: func(fs *pflag.FlagSet, c *Config) { fs.String("outdir", c.OutputDirectory, "") },
			read: func(c *Config) { c.OutputDirectory = absPath(viper.GetString("outdir")) },
		},
		{
			key: "maxfilesize", env: "Maximum template size", usage: "Maximum PDF file size in bytes",
			flag: func(fs *pflag.FlagSet, c *Config) { fs.Int64("maxfilesize", c.MaxFileSize, "") },
			read: func(c *Config) { c.MaxFileSize = viper.GetInt64("maxfilesize") },
		},
		{
			key: "floor", env: "Confidence floor", usage: "Minimum confidence of layout-detected fields (0-1)",
			flag: func(fs *pflag.FlagSet, c *Config) { fs.Float64("floor", c.ConfidenceFloor, "") },
			read: func(c *Config) { c.ConfidenceFloor = viper.GetFloat64("floor") },
		},
		{
			key: "labelgap", env: "Maximum label gap",
			usage: "Farthest distance between a label and its blank, in points",
			flag:  func(fs *pflag.FlagSet, c *Config) { fs.Float64("labelgap", c.MaxLabelGap, "") },
			read:  func(c *Config) { c.MaxLabelGap = viper.GetFloat64("labelgap") },
		},
		{
			key: "cachesize", env: "Detection cache size", usage: "Number of detection results kept in memory",
			flag: func(fs *pflag.FlagSet, c *Config) { fs.Int("cachesize", c.CacheSize, "") },
			read: func(c *Config) { c.CacheSize = viper.GetInt("cachesize") },
		},
		{
			key: "loglevel", env: "Log level", usage: "Log level (" + strings.Join(logLevels, ", ") + ")",
			flag: func(fs *pflag.FlagSet, c *Config) { fs.String("loglevel", c.LogLevel, "") },
			read: func(c *Config) { c.LogLevel = viper.GetString("loglevel") },
		},
	}
}

// LoadFromFlags builds the configuration from defaults, FIELDSTAMP_*
// environment variables and command line flags, in increasing precedence.
func LoadFromFlags() (*Config, error) {
	if versionRequested(os.Args[1:]) {
		return nil, ErrVersionRequested
	}

	cfg := DefaultConfig()
	fs := pflag.CommandLine
	all := settings()

	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()
	for _, s := range all {
		s.flag(fs, cfg)
		fs.Lookup(s.key).Usage = s.usage
		if err := viper.BindPFlag(s.key, fs.Lookup(s.key)); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", s.key, err)
		}
	}
	fs.Usage = func() { printUsage(fs, all) }

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}
	for _, s := range all {
		s.read(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func versionRequested(args []string) bool {
	for _, arg := range args {
		switch arg {
		case "-v", "-version", "--version":
			return true
		}
	}
	return false
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func printUsage(fs *pflag.FlagSet, all []setting) {
	name := filepath.Base(os.Args[0])
	w := os.Stderr
	fmt.Fprintf(w, "Usage of %s:\n\n", name)
	fmt.Fprintf(w, "MCP PDF Fieldstamp - detect form fields in PDF templates and stamp values into them\n\n")
	fmt.Fprintf(w, "Options:\n")
	fs.PrintDefaults()

	fmt.Fprintf(w, "\nExamples:\n")
	for _, ex := range [][2]string{
		{"", "stdio mode, current directory (default)"},
		{"--dir=/srv/templates --outdir=/srv/out", "separate output directory"},
		{"--floor=0.7", "stricter layout detection"},
		{"--mode=server --host=0.0.0.0 --port=8081", "SSE server on all interfaces"},
	} {
		fmt.Fprintf(w, "  %-58s # %s\n", strings.TrimSpace(name+" "+ex[0]), ex[1])
	}

	fmt.Fprintf(w, "\nEnvironment Variables:\n")
	for _, s := range all {
		fmt.Fprintf(w, "  %-24s %s\n", EnvPrefix+"_"+strings.ToUpper(s.key), s.env)
	}
}

// Validate checks every setting and creates missing directories
func (c *Config) Validate() error {
	checks := []func() error{
		c.validateTransport,
		c.validateDirectories,
		c.validateLimits,
		c.validateDetection,
		c.validateLogLevel,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateTransport() error {
	switch c.Mode {
	case ModeStdio:
		return nil
	case ModeServer:
		if c.Port < 1 || c.Port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		return nil
	default:
		return errors.New("mode must be either 'stdio' or 'server'")
	}
}

func (c *Config) validateDirectories() error {
	if c.TemplateDirectory == "" {
		return errors.New("template directory cannot be empty")
	}
	for _, dir := range []string{c.TemplateDirectory, c.OutputDirectory} {
		if dir == "" {
			continue
		}
		_, err := os.Stat(dir)
		switch {
		case os.IsNotExist(err):
			if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
				return fmt.Errorf("cannot create directory %s: %w", dir, err)
			}
		case err != nil:
			return fmt.Errorf("cannot access directory %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative, got %d", c.CacheSize)
	}
	return nil
}

func (c *Config) validateDetection() error {
	if math.IsNaN(c.ConfidenceFloor) || c.ConfidenceFloor < 0 || c.ConfidenceFloor > 1 {
		return fmt.Errorf("confidence floor must be between 0 and 1, got %v", c.ConfidenceFloor)
	}
	if math.IsNaN(c.MaxLabelGap) || math.IsInf(c.MaxLabelGap, 0) || c.MaxLabelGap <= 0 {
		return fmt.Errorf("label gap must be a positive number of points, got %v", c.MaxLabelGap)
	}
	return nil
}

func (c *Config) validateLogLevel() error {
	for _, level := range logLevels {
		if c.LogLevel == level {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(logLevels, ", "))
}

// Address returns the listen address in host:port form
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug reports whether debug logging is on
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// OutputDir returns the effective output directory
func (c *Config) OutputDir() string {
	if c.OutputDirectory == "" {
		return c.TemplateDirectory
	}
	return c.OutputDirectory
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, TemplateDirectory: %s, OutputDirectory: %s, "+
		"LogLevel: %s, MaxFileSize: %d, ConfidenceFloor: %g, MaxLabelGap: %g, CacheSize: %d}",
		c.Mode, c.Host, c.Port, c.TemplateDirectory, c.OutputDir(), c.LogLevel, c.MaxFileSize,
		c.ConfidenceFloor, c.MaxLabelGap, c.CacheSize)
}

// IsServerMode reports whether the SSE server transport is selected
func (c *Config) IsServerMode() bool { return c.Mode == ModeServer }

// IsStdioMode reports whether the stdio transport is selected
func (c *Config) IsStdioMode() bool { return c.Mode == ModeStdio }
