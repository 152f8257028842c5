package client

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the client config file
type Config struct {
	Connection ConnectionSection `toml:"connection"`
	Terminal   TerminalSection   `toml:"terminal"`
	Local      LocalSection      `toml:"local"`
	Notify     NotifySection     `toml:"notify"`
	Metrics    MetricsSection    `toml:"metrics"`
}

type ConnectionSection struct {
	Server string `toml:"server"`
	Port   int    `toml:"port"`
}

type TerminalSection struct {
	FallbackWidth      int  `toml:"fallback_width"`
	FallbackHeight     int  `toml:"fallback_height"`
	InteractivePrompts bool `toml:"interactive_prompts"`
}

type LocalSection struct {
	TranscriptDB string `toml:"transcript_db"` // empty disables the transcript
	LogFile      string `toml:"log_file"`      // empty disables debug logging
}

type NotifySection struct {
	OnDisconnect bool `toml:"on_disconnect"`
}

type MetricsSection struct {
	ListenAddr string `toml:"listen_addr"` // empty disables the /metrics listener
}

// ConfigError represents a structured configuration error
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

func getXDGConfigHome() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config")
}

func getXDGDataHome() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return xdg
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".local", "share")
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/mudclient/config.toml
func DefaultConfigPath() string {
	return filepath.Join(getXDGConfigHome(), "mudclient", "config.toml")
}

// DefaultConfig returns the configuration used when no file exists
func DefaultConfig() Config {
	return Config{
		Connection: ConnectionSection{
			Server: "localhost",
			Port:   2277,
		},
		Terminal: TerminalSection{
			FallbackWidth:      80,
			FallbackHeight:     24,
			InteractivePrompts: true,
		},
		Local: LocalSection{
			TranscriptDB: filepath.Join(getXDGDataHome(), "mudclient", "transcript.db"),
		},
	}
}

// LoadConfig reads the config at path, writing the defaults there first if
// the file does not exist yet. Keys missing from the file keep their
// default values.
func LoadConfig(path string) (Config, error) {
	path, err := expandPath(path)
	if err != nil {
		return Config{}, err
	}

	config := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// An unwritable config dir is not fatal, the defaults still apply
		_ = writeDefaultConfig(path, config)
		return config, nil
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return Config{}, &ConfigError{
			Path:       path,
			Message:    strings.TrimPrefix(err.Error(), "toml: "),
			LineNumber: extractLineNumber(err.Error()),
		}
	}

	if err := validateConfig(&config); err != nil {
		return Config{}, &ConfigError{Path: path, Message: err.Error()}
	}
	return config, nil
}

// extractLineNumber tries to extract a line number from a TOML parse error
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

func validateConfig(config *Config) error {
	var problems []string

	if strings.TrimSpace(config.Connection.Server) == "" {
		problems = append(problems, "Server address cannot be empty")
	}
	if config.Connection.Port < 0 || config.Connection.Port > 65535 {
		problems = append(problems, fmt.Sprintf("Invalid port number: %d (must be 1-65535, or 0 for the scheme default)", config.Connection.Port))
	}

	if config.Terminal.FallbackWidth < 1 || config.Terminal.FallbackWidth > 65535 {
		problems = append(problems, fmt.Sprintf("Invalid fallback width: %d (must be 1-65535)", config.Terminal.FallbackWidth))
	}
	if config.Terminal.FallbackHeight < 1 || config.Terminal.FallbackHeight > 65535 {
		problems = append(problems, fmt.Sprintf("Invalid fallback height: %d (must be 1-65535)", config.Terminal.FallbackHeight))
	}

	if addr := config.Metrics.ListenAddr; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			problems = append(problems, fmt.Sprintf("Invalid metrics listen address %q: %v", addr, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("Configuration validation failed:\n  • %s", strings.Join(problems, "\n  • "))
	}
	return nil
}

func writeDefaultConfig(path string, config Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	header := `# mudclient configuration
# This file was auto-generated with default values
# Edit as needed - changes take effect on next client start

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ServerAddress returns the address to dial. A scheme-qualified server is
// used as is; a bare host gets the configured port appended.
func (c *Config) ServerAddress() string {
	server := strings.TrimSpace(c.Connection.Server)
	if server == "" || strings.Contains(server, "://") || c.Connection.Port <= 0 {
		return server
	}
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, strconv.Itoa(c.Connection.Port))
}

// TranscriptPath returns the transcript database path with ~ expanded, or
// "" when the transcript is disabled.
func (c *Config) TranscriptPath() (string, error) {
	if strings.TrimSpace(c.Local.TranscriptDB) == "" {
		return "", nil
	}
	return expandPath(c.Local.TranscriptDB)
}

// LogFilePath returns the debug log path with ~ expanded, or "" when disabled
func (c *Config) LogFilePath() (string, error) {
	if strings.TrimSpace(c.Local.LogFile) == "" {
		return "", nil
	}
	return expandPath(c.Local.LogFile)
}

// ResetConfig overwrites the config at path with the defaults. With backup
// set the old file is copied aside first.
func ResetConfig(path string, backup bool) error {
	path, err := expandPath(path)
	if err != nil {
		return err
	}

	if backup {
		backupPath := fmt.Sprintf("%s.backup-%s", path, time.Now().Format("2006-01-02"))
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		if err := os.WriteFile(backupPath, data, 0644); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
	}

	if err := writeDefaultConfig(path, DefaultConfig()); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}
	return path, nil
}
