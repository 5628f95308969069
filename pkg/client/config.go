package client

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// TOMLConfig is the structure of the optional defaults file. It only ever
// supplies defaults — a CLI flag the user actually passed always wins.
type TOMLConfig struct {
	Connection ConnectionSection `toml:"connection"`
}

type ConnectionSection struct {
	Protocol         string `toml:"protocol"` // "tcp" or "udp"
	DefaultPort      int    `toml:"default_port"`
	UDPTimeoutMS     int    `toml:"udp_timeout_ms"`
	UDPMaxRetransmit int    `toml:"udp_max_retransmissions"`
}

// ConfigError is a malformed config file. Per this repo's startup
// convention, it is fatal before any socket is opened.
type ConfigError struct {
	Path       string
	Message    string
	LineNumber int // 0 if not a parse error
}

func (e *ConfigError) Error() string {
	if e.LineNumber > 0 {
		return fmt.Sprintf("%s: %s (line %d)", e.Path, e.Message, e.LineNumber)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// DefaultConfigPath returns ~/.config/ipk24chat/client.toml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "ipk24chat", "client.toml")
}

// DefaultTOMLConfig returns the engine's built-in defaults, used both as
// the bottom of the flag > file > default precedence chain and as the
// content written for a fresh config file.
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Connection: ConnectionSection{
			Protocol:         "udp",
			DefaultPort:      4567,
			UDPTimeoutMS:     250,
			UDPMaxRetransmit: 3,
		},
	}
}

// LoadClientConfig loads configuration from a TOML file, writing a fresh
// default file if one does not exist yet. A write failure on first run is
// swallowed — the in-memory defaults are still usable.
func LoadClientConfig(path string) (TOMLConfig, error) {
	path = expandHome(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		_ = writeDefaultConfig(path, config)
		return config, nil
	}

	config := DefaultTOMLConfig()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, &ConfigError{
			Path:       path,
			Message:    cleanErrorMessage(err.Error()),
			LineNumber: extractLineNumber(err.Error()),
		}
	}

	if err := validateConfig(&config); err != nil {
		return TOMLConfig{}, &ConfigError{Path: path, Message: err.Error()}
	}

	return config, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// extractLineNumber pulls a line number out of a BurntSushi/toml parse
// error, which formats roughly as "... at line N, column M: ...".
func extractLineNumber(errMsg string) int {
	re := regexp.MustCompile(`line (\d+)`)
	matches := re.FindStringSubmatch(errMsg)
	if len(matches) > 1 {
		if num, err := strconv.Atoi(matches[1]); err == nil {
			return num
		}
	}
	return 0
}

func cleanErrorMessage(errMsg string) string {
	return strings.TrimPrefix(errMsg, "toml: ")
}

func validateConfig(config *TOMLConfig) error {
	var problems []string

	proto := strings.ToLower(config.Connection.Protocol)
	if proto != "" && proto != "tcp" && proto != "udp" {
		problems = append(problems, fmt.Sprintf("invalid protocol %q (must be tcp or udp)", config.Connection.Protocol))
	}
	if config.Connection.DefaultPort != 0 && (config.Connection.DefaultPort < 1 || config.Connection.DefaultPort > 65535) {
		problems = append(problems, fmt.Sprintf("invalid port %d (must be 1-65535)", config.Connection.DefaultPort))
	}
	if config.Connection.UDPTimeoutMS < 0 {
		problems = append(problems, "udp_timeout_ms cannot be negative")
	}
	if config.Connection.UDPMaxRetransmit < 0 {
		problems = append(problems, "udp_max_retransmissions cannot be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func writeDefaultConfig(path string, config TOMLConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	header := "# ipk24chat client configuration\n" +
		"# auto-generated with default values; CLI flags always take precedence\n\n"
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Settings is the fully-resolved set of connection parameters, after
// applying the flag > file > built-in precedence chain.
type Settings struct {
	Protocol         string
	Port             int
	UDPTimeoutMS     int
	UDPMaxRetransmit int
}

// Overrides carries the flag package's own notion of "was this flag
// explicitly set", one bool per field, so Resolve can tell a default flag
// value apart from a user-supplied one that happens to match the default.
type Overrides struct {
	Protocol         string
	ProtocolSet      bool
	Port             int
	PortSet          bool
	UDPTimeoutMS     int
	UDPTimeoutSet    bool
	UDPMaxRetransmit int
	UDPRetriesSet    bool
}

// Resolve merges the config file's defaults with CLI-flag overrides.
func (c TOMLConfig) Resolve(o Overrides) Settings {
	s := Settings{
		Protocol:         c.Connection.Protocol,
		Port:             c.Connection.DefaultPort,
		UDPTimeoutMS:     c.Connection.UDPTimeoutMS,
		UDPMaxRetransmit: c.Connection.UDPMaxRetransmit,
	}
	if o.ProtocolSet {
		s.Protocol = o.Protocol
	}
	if o.PortSet {
		s.Port = o.Port
	}
	if o.UDPTimeoutSet {
		s.UDPTimeoutMS = o.UDPTimeoutMS
	}
	if o.UDPRetriesSet {
		s.UDPMaxRetransmit = o.UDPMaxRetransmit
	}
	return s
}
