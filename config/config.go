package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort     = 8000
	DefaultTestPage = "test_mlkit.html"

	// EnvPrefix namespaces every environment override
	EnvPrefix = "CORSSERVE_"
)

type Config struct {
	Server  ServerConfig  `json:"server"`
	Browser BrowserConfig `json:"browser"`
	Log     LogConfig     `json:"log"`
}

type ServerConfig struct {
	Host              string `json:"host"`
	Port              int    `json:"port"`
	Root              string `json:"root"`
	Compress          bool   `json:"compress"`
	ReadHeaderTimeout string `json:"read_header_timeout"`
	ReadTimeout       string `json:"read_timeout"`
	WriteTimeout      string `json:"write_timeout"`
	IdleTimeout       string `json:"idle_timeout"`
	MaxHeaderBytes    int    `json:"max_header_bytes"`

	// Private fields to store parsed durations
	readHeaderTimeoutDuration time.Duration
	readTimeoutDuration       time.Duration
	writeTimeoutDuration      time.Duration
	idleTimeoutDuration       time.Duration
}

type BrowserConfig struct {
	Open     bool   `json:"open"`
	TestPage string `json:"test_page"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// Default returns the configuration used when no file or environment overrides exist
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              DefaultPort,
			ReadHeaderTimeout: "10s",
			ReadTimeout:       "30s",
			WriteTimeout:      "0s",
			IdleTimeout:       "120s",
			MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
		},
		Browser: BrowserConfig{
			Open:     true,
			TestPage: DefaultTestPage,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, then the JSON file at configPath,
// then the dotenv file at envPath, then the process environment. Either path may
// be empty. A missing file is not an error; a malformed one is.
func Load(configPath, envPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		}
	}

	dotenv := map[string]string{}
	if envPath != "" {
		vars, err := godotenv.Read(envPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read env file %s: %w", envPath, err)
		default:
			dotenv = vars
		}
	}

	// Real environment wins over the dotenv file
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			return v, true
		}
		v, ok := dotenv[EnvPrefix+key]
		return v, ok
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("HOST"); ok {
		c.Server.Host = v
	}
	if v, ok := lookup("PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %sPORT %q: %w", EnvPrefix, v, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("ROOT"); ok {
		c.Server.Root = v
	}
	if v, ok := lookup("COMPRESS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sCOMPRESS %q: %w", EnvPrefix, v, err)
		}
		c.Server.Compress = b
	}
	if v, ok := lookup("TEST_PAGE"); ok {
		c.Browser.TestPage = v
	}
	if v, ok := lookup("OPEN_BROWSER"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sOPEN_BROWSER %q: %w", EnvPrefix, v, err)
		}
		c.Browser.Open = b
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("LOG_FILE"); ok {
		c.Log.File = v
	}
	return nil
}

// Validate checks ranges, resolves the document root to an absolute directory
// and parses timeouts. An empty root means the launch directory.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 0 and 65535", c.Server.Port)
	}
	if c.Server.MaxHeaderBytes < 0 {
		return fmt.Errorf("invalid max_header_bytes %d: must not be negative", c.Server.MaxHeaderBytes)
	}

	root := c.Server.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("invalid root %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("invalid root %q: %w", abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("invalid root %q: not a directory", abs)
	}
	c.Server.Root = abs

	c.Browser.TestPage = strings.TrimPrefix(c.Browser.TestPage, "/")

	return c.Server.ToDuration()
}

// ToDuration converts the string timeouts after unmarshaling
func (s *ServerConfig) ToDuration() error {
	var err error
	if s.readHeaderTimeoutDuration, err = parseDuration("read_header_timeout", s.ReadHeaderTimeout); err != nil {
		return err
	}
	if s.readTimeoutDuration, err = parseDuration("read_timeout", s.ReadTimeout); err != nil {
		return err
	}
	if s.writeTimeoutDuration, err = parseDuration("write_timeout", s.WriteTimeout); err != nil {
		return err
	}
	if s.idleTimeoutDuration, err = parseDuration("idle_timeout", s.IdleTimeout); err != nil {
		return err
	}
	return nil
}

func parseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s duration: %s is negative", name, value)
	}
	return d, nil
}

func (s *ServerConfig) GetReadHeaderTimeout() time.Duration {
	return s.readHeaderTimeoutDuration
}

func (s *ServerConfig) GetReadTimeout() time.Duration {
	return s.readTimeoutDuration
}

func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return s.writeTimeoutDuration
}

func (s *ServerConfig) GetIdleTimeout() time.Duration {
	return s.idleTimeoutDuration
}

// Addr is the listen address, e.g. ":8000"
func (s *ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DefaultPaths returns the config file and dotenv locations relative to the
// working directory. CORSSERVE_CONFIG overrides the config file path.
func DefaultPaths() (configPath, envPath string, err error) {
	workDir, err := os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	configPath = filepath.Join(workDir, "config", "config.json")
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		configPath = p
	}
	return configPath, filepath.Join(workDir, ".env"), nil
}
