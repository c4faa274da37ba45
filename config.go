package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultConfigPath is the default filename for persisted configuration.
const defaultConfigPath = "splitdemo.json"

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Backend names accepted by the "backend" configuration key.
const (
	BackendGPIO = "gpio"
	BackendLog  = "log"
	BackendNull = "null"
)

// Duration wraps time.Duration so that it is written as a Go duration string
// ("100us", "250ms") in both JSON and YAML configuration files.
type Duration time.Duration

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Lines holds the BCM GPIO numbers of the LEDs, indexed by sub-circuit.
type Lines struct {
	Forward  []int `json:"forward" yaml:"forward"`
	Backward []int `json:"backward" yaml:"backward"`
}

// forDirection returns the line numbers of one indicator set.
func (l Lines) forDirection(d Direction) []int {
	if d == DirectionIn {
		return l.Backward
	}
	return l.Forward
}

// Config is the top-level structure serialized to the configuration file.
// Only DisableDemo, BlinkDuration and CellInterval influence the demo logic;
// the rest selects and wires the indicator backend.
type Config struct {
	DisableDemo   bool     `json:"disable_demo" yaml:"disable_demo"`
	Backend       string   `json:"backend" yaml:"backend"`               // gpio, log or null
	BlinkDuration Duration `json:"blink_duration" yaml:"blink_duration"` // how long an LED stays lit
	CellInterval  uint32   `json:"cell_interval" yaml:"cell_interval"`   // every Nth cell lights an LED
	Lines         Lines    `json:"lines" yaml:"lines"`
	ActiveLow     bool     `json:"active_low" yaml:"active_low"` // LEDs wired to sink current
	Consumer      string   `json:"consumer" yaml:"consumer"`     // diagnostic label only, periph does not claim lines by consumer
	LogLevel      string   `json:"log_level" yaml:"log_level"`
	LogFile       string   `json:"log_file" yaml:"log_file"`
}

// DefaultConfig returns the wiring of the original demo board: three
// sub-circuits, forward LEDs on GPIO 14/18/23 and backward LEDs on 4/17/22.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendLog,
		BlinkDuration: Duration(100 * time.Microsecond),
		CellInterval:  100,
		Lines: Lines{
			Forward:  []int{14, 18, 23},
			Backward: []int{4, 17, 22},
		},
		Consumer: "splitdemo",
		LogLevel: "I",
	}
}

// Validate checks the values the demo relies on.  All problems are reported
// together.
func (c Config) Validate() error {
	var problems []string
	switch strings.ToLower(c.Backend) {
	case BackendGPIO, BackendLog, BackendNull:
	default:
		problems = append(problems, fmt.Sprintf("unknown backend %q", c.Backend))
	}
	if c.CellInterval == 0 {
		problems = append(problems, "cell_interval must be at least 1")
	}
	if c.BlinkDuration <= 0 {
		problems = append(problems, "blink_duration must be positive")
	}
	seen := map[int]bool{}
	for _, d := range directions {
		lines := c.Lines.forDirection(d)
		if len(lines) != NumSubcircuits {
			problems = append(problems, fmt.Sprintf("need %d %s lines, got %d", NumSubcircuits, d, len(lines)))
		}
		for _, n := range lines {
			if n < 0 {
				problems = append(problems, fmt.Sprintf("negative line number %d", n))
			}
			if seen[n] {
				problems = append(problems, fmt.Sprintf("line %d used twice", n))
			}
			seen[n] = true
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ConfigManager wraps the loaded configuration and a mutex for concurrent
// access.  The file format follows the extension: .yaml and .yml files are
// YAML, anything else is JSON.
type ConfigManager struct {
	Path string

	mu     sync.RWMutex
	cfg    Config
	loaded bool
}

// NewConfigManager creates a manager for the file at path.  An empty path
// selects defaultConfigPath.
func NewConfigManager(path string) *ConfigManager {
	if path == "" {
		path = defaultConfigPath
	}
	return &ConfigManager{Path: path}
}

func (cm *ConfigManager) isYAML() bool {
	switch strings.ToLower(filepath.Ext(cm.Path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads configuration from disk.  If the file does not exist, the
// default configuration is persisted so that it can be edited for the next
// run.  Keys absent from an existing file keep their default values.
func (cm *ConfigManager) Load() error {
	cm.mu.Lock()
	if cm.loaded {
		cm.mu.Unlock()
		return nil
	}
	data, err := os.ReadFile(cm.Path)
	if err != nil {
		if os.IsNotExist(err) {
			cm.cfg = DefaultConfig()
			cm.loaded = true
			// Save acquires a read lock on the same mutex.
			cm.mu.Unlock()
			return cm.Save()
		}
		cm.mu.Unlock()
		return fmt.Errorf("unable to read config: %w", err)
	}
	cfg := DefaultConfig()
	if cm.isYAML() {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("invalid %s: %w", cm.Path, err)
	}
	if err := cfg.Validate(); err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("%s: %w", cm.Path, err)
	}
	cm.cfg = cfg
	cm.loaded = true
	cm.mu.Unlock()
	return nil
}

// Save writes the configuration to disk via a temporary file, so a crash
// never leaves a truncated config behind.
func (cm *ConfigManager) Save() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var (
		data []byte
		err  error
	)
	if cm.isYAML() {
		data, err = yaml.Marshal(cm.cfg)
	} else {
		data, err = json.MarshalIndent(cm.cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	tmpPath := cm.Path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, cm.Path)
}

// Get returns a copy of the current configuration.  Callers must treat the
// slices inside the returned Config as immutable.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.cfg
}

// Override applies command line overrides in memory.  They are validated but
// never persisted.
func (cm *ConfigManager) Override(fn func(*Config)) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cfg := cm.cfg
	fn(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	cm.cfg = cfg
	return nil
}
