package config

import (
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v4"
	"github.com/tphan267/arqut-signal/pkg/signaling"
	"github.com/tphan267/arqut-signal/pkg/utils"
	"go.yaml.in/yaml/v3"
)

const (
	DefaultRelayURL   = "ws://localhost:8080"
	DefaultRoom       = "OldPlace"
	DefaultCodec      = "json"
	DefaultSTUNServer = "stun:stun.l.google.com:19302"
	DefaultLogLevel   = "info"
	DefaultDBFile     = "arqut-signal.db"
)

// Config holds the application configuration
type Config struct {
	RelayURL string `yaml:"relay_url"`
	Room     string `yaml:"room"`
	Codec    string `yaml:"codec"` // "json" or "msgpack"

	// VerifyServerCertificate is a pointer so an absent key keeps the secure default.
	VerifyServerCertificate *bool    `yaml:"verify_server_certificate,omitempty"`
	CAFile                  string   `yaml:"ca_file,omitempty"`
	STUNServers             []string `yaml:"stun_servers"`

	DBPath   string `yaml:"db_path"`
	APIAddr  string `yaml:"api_addr,omitempty"` // empty disables the status API
	APIToken string `yaml:"api_token,omitempty"`
	LogLevel string `yaml:"log_level"`

	Version string `yaml:"-"`

	mu   sync.Mutex `yaml:"-"`
	file string     `yaml:"-"`
}

// File returns the path the configuration was loaded from
func (c *Config) File() string {
	return c.file
}

// Save writes the current configuration back to the file
func (c *Config) Save() error {
	if c.file == "" {
		return fmt.Errorf("config file path is not set")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(c.file); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(c.file, data, 0o600)
}

// EnsureDefaultConfig applies environment overrides and fills missing fields
func (c *Config) EnsureDefaultConfig(save bool) error {
	changed := false
	c.mu.Lock()

	// Env overrides
	if relayURL := utils.Env("ARQUT_RELAY_URL", ""); relayURL != "" {
		c.RelayURL = relayURL
	}
	if room := utils.Env("ARQUT_ROOM", ""); room != "" {
		c.Room = room
	}
	if codec := utils.Env("ARQUT_CODEC", ""); codec != "" {
		c.Codec = codec
	}
	if verify, ok := utils.EnvBool("ARQUT_VERIFY_SERVER_CERTIFICATE"); ok {
		c.VerifyServerCertificate = &verify
	}
	if caFile := utils.Env("ARQUT_CA_FILE", ""); caFile != "" {
		c.CAFile = caFile
	}
	if apiAddr := utils.Env("ARQUT_API_ADDR", ""); apiAddr != "" {
		c.APIAddr = apiAddr
	}
	if apiToken := utils.Env("ARQUT_API_TOKEN", ""); apiToken != "" {
		c.APIToken = apiToken
	}
	if logLevel := utils.Env("ARQUT_LOG_LEVEL", ""); logLevel != "" {
		c.LogLevel = logLevel
	}

	// Create defaults
	if c.RelayURL == "" {
		c.RelayURL = DefaultRelayURL
		changed = true
	}

	if c.Room == "" {
		c.Room = DefaultRoom
		changed = true
	}

	if c.Codec == "" {
		c.Codec = DefaultCodec
		changed = true
	}

	if len(c.STUNServers) == 0 {
		c.STUNServers = []string{DefaultSTUNServer}
		changed = true
	}

	if c.DBPath == "" {
		c.DBPath = filepath.Join(filepath.Dir(c.file), DefaultDBFile)
		changed = true
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
		changed = true
	}

	c.mu.Unlock()

	if changed && save && c.file != "" {
		return c.Save()
	}
	return nil
}

// VerifyCertificates reports whether relay TLS certificates are checked
func (c *Config) VerifyCertificates() bool {
	return c.VerifyServerCertificate == nil || *c.VerifyServerCertificate
}

// SecurityConfig builds the relay transport policy. A CA file that cannot be
// read or holds no certificates is a configuration error.
func (c *Config) SecurityConfig() (signaling.SecurityConfig, error) {
	security := signaling.SecurityConfig{VerifyServerCertificate: c.VerifyCertificates()}
	if c.CAFile == "" {
		return security, nil
	}

	pem, err := os.ReadFile(c.CAFile)
	if err != nil {
		return security, &signaling.ConfigurationError{Field: "ca_file", Err: err}
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return security, &signaling.ConfigurationError{Field: "ca_file", Err: errors.New("no PEM certificates found")}
	}
	security.CustomTrustAnchors = pool
	return security, nil
}

// ICEServers returns the configured STUN servers for the peer connection
func (c *Config) ICEServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(c.STUNServers))
	for _, url := range c.STUNServers {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}
	return servers
}

// Load loads configuration from the specified file and environment variables.
// A missing file is created with defaults.
func Load(version, file, logLevel string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Version: version,
		file:    file,
	}

	if _, err := os.Stat(file); err == nil {
		yamlFeeder := feeder.Yaml{Path: file}
		if err := config.New().AddFeeder(yamlFeeder).AddStruct(cfg).Feed(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	if err := cfg.EnsureDefaultConfig(true); err != nil {
		return nil, err
	}

	// Override log level from command-line argument
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	return cfg, nil
}
