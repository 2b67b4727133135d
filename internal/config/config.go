package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const DEFAULT_PROTECTED_PORT = 2222
const DEFAULT_WINDOW = 10 * time.Second
const DEFAULT_OPEN_TTL = 30 * time.Second

var DEFAULT_SEQUENCE = []uint16{1234, 5678, 9012}

type MarshalledConfig struct {
	Knock    KnockConfig    `yaml:"knock"`
	Firewall FirewallConfig `yaml:"firewall"`
}

type KnockConfig struct {
	Sequence      []uint16 `yaml:"sequence"`
	ProtectedPort uint16   `yaml:"protectedPort"`
	WindowSecs    float64  `yaml:"window,omitempty"`
	TtlSecs       float64  `yaml:"ttl,omitempty"`
}

type FirewallConfig struct {
	Backend string `yaml:"backend,omitempty"`
}

// AppConfig is the resolved runtime configuration for the knock server.
type AppConfig struct {
	Sequence      []uint16
	ProtectedPort uint16
	Window        time.Duration
	OpenTTL       time.Duration
	Backend       string
}

// ParseSequence parses a comma-separated knock port list, e.g. "1234,5678,9012".
func ParseSequence(spec string) ([]uint16, error) {
	parts := strings.Split(spec, ",")
	sequence := make([]uint16, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		port, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid knock port %q: use comma-separated integers", part)
		}
		if port == 0 {
			return nil, fmt.Errorf("invalid knock port 0")
		}
		sequence = append(sequence, uint16(port))
	}
	return sequence, nil
}

func validate(c *AppConfig) error {
	if len(c.Sequence) == 0 {
		return fmt.Errorf("knock sequence must contain at least one port")
	}
	seen := make(map[uint16]struct{}, len(c.Sequence))
	for _, port := range c.Sequence {
		if _, dup := seen[port]; dup {
			return fmt.Errorf("knock sequence contains port %d twice", port)
		}
		seen[port] = struct{}{}
		if port == c.ProtectedPort {
			return fmt.Errorf("knock port %d collides with the protected port", port)
		}
	}
	if c.ProtectedPort == 0 {
		return fmt.Errorf("protected port must be set")
	}
	if c.Window <= 0 {
		return fmt.Errorf("sequence window must be positive, got %s", c.Window)
	}
	if c.OpenTTL <= 0 {
		return fmt.Errorf("open ttl must be positive, got %s", c.OpenTTL)
	}
	return nil
}

// New builds an AppConfig from a YAML document, filling in defaults for
// anything the document leaves out. Invalid configuration is a startup
// error; there is no partial startup.
func New(reader io.Reader) (*AppConfig, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var marshalled MarshalledConfig
	if err := yaml.Unmarshal(data, &marshalled); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	result := Default()
	if marshalled.Knock.Sequence != nil {
		result.Sequence = marshalled.Knock.Sequence
	}
	if marshalled.Knock.ProtectedPort != 0 {
		result.ProtectedPort = marshalled.Knock.ProtectedPort
	}
	if marshalled.Knock.WindowSecs != 0 {
		result.Window = time.Duration(marshalled.Knock.WindowSecs * float64(time.Second))
	}
	if marshalled.Knock.TtlSecs != 0 {
		result.OpenTTL = time.Duration(marshalled.Knock.TtlSecs * float64(time.Second))
	}
	if marshalled.Firewall.Backend != "" {
		result.Backend = marshalled.Firewall.Backend
	}

	if err := validate(result); err != nil {
		return nil, err
	}
	return result, nil
}

// Load reads an AppConfig from a YAML file on disk.
func Load(path string) (*AppConfig, error) {
	fileHandle, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer fileHandle.Close()
	return New(fileHandle)
}

// Default returns the stock configuration: sequence 1234,5678,9012 protecting
// port 2222 with a 10s completion window and 30s open TTL.
func Default() *AppConfig {
	sequence := make([]uint16, len(DEFAULT_SEQUENCE))
	copy(sequence, DEFAULT_SEQUENCE)
	return &AppConfig{
		Sequence:      sequence,
		ProtectedPort: DEFAULT_PROTECTED_PORT,
		Window:        DEFAULT_WINDOW,
		OpenTTL:       DEFAULT_OPEN_TTL,
		Backend:       "iptables",
	}
}

// Validate re-checks a config after flag overrides have been applied.
func (c *AppConfig) Validate() error {
	return validate(c)
}
