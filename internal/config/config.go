package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultKeyFileCandidates are checked in order when KEY_FILE is not set.
var DefaultKeyFileCandidates = []string{
	"/root/.ssh/authorized_keys",
	"/home/ubuntu/.ssh/authorized_keys",
	"/home/admin/.ssh/authorized_keys",
}

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// KeyFile overrides KeyFileCandidates when set.
	KeyFile           string   `yaml:"key_file"`
	KeyFileCandidates []string `yaml:"key_file_candidates"`

	DokkuRoot     string `yaml:"dokku_root"`
	InitDir       string `yaml:"init_dir"`
	SystemdDir    string `yaml:"systemd_dir"`
	NginxDir      string `yaml:"nginx_dir"`
	NginxSitesDir string `yaml:"nginx_sites_dir"`
	OSReleasePath string `yaml:"os_release_path"`
	IPLookupURL   string `yaml:"ip_lookup_url"`

	// MetricsAddr enables the /metrics and /healthz listener when non-empty.
	MetricsAddr string `yaml:"metrics_addr"`
}

func defaults() *Config {
	return &Config{
		Port:              "2000",
		LogLevel:          "info",
		KeyFileCandidates: append([]string(nil), DefaultKeyFileCandidates...),
		DokkuRoot:         "/home/dokku",
		InitDir:           "/etc/init",
		SystemdDir:        "/etc/systemd/system",
		NginxDir:          "/etc/nginx/conf.d",
		NginxSitesDir:     "/etc/nginx/sites-enabled",
		OSReleasePath:     "/etc/os-release",
		IPLookupURL:       "https://icanhazip.com",
	}
}

// Load builds the config from defaults, the optional YAML file named by
// INSTALLER_CONFIG, and finally the environment.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("INSTALLER_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.KeyFile = getEnv("KEY_FILE", cfg.KeyFile)
	cfg.DokkuRoot = getEnv("DOKKU_ROOT", cfg.DokkuRoot)
	cfg.InitDir = getEnv("INIT_DIR", cfg.InitDir)
	cfg.SystemdDir = getEnv("SYSTEMD_DIR", cfg.SystemdDir)
	cfg.NginxDir = getEnv("NGINX_DIR", cfg.NginxDir)
	cfg.NginxSitesDir = getEnv("NGINX_SITES_DIR", cfg.NginxSitesDir)
	cfg.OSReleasePath = getEnv("OS_RELEASE_PATH", cfg.OSReleasePath)
	cfg.IPLookupURL = getEnv("IP_LOOKUP_URL", cfg.IPLookupURL)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks fields that would otherwise fail late at listen time.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("PORT must be 1-65535, got %d", port)
	}
	if c.DokkuRoot == "" {
		return fmt.Errorf("DOKKU_ROOT is required")
	}
	return nil
}

// ListenAddr is the address the installer endpoint binds to.
func (c *Config) ListenAddr() string {
	return ":" + c.Port
}

// KeyFilePaths returns the key file lookup order, with the override first.
func (c *Config) KeyFilePaths() []string {
	if c.KeyFile != "" {
		return []string{c.KeyFile}
	}
	return c.KeyFileCandidates
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
