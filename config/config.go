package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"go-pianoroll/layout"
	"go-pianoroll/tools"
)

// StoreBackend selects the NoteStore implementation
type StoreBackend string

const (
	StoreMemory StoreBackend = "memory"
	StoreSQLite StoreBackend = "sqlite"
)

// ControllerType identifies the kind of controller
type ControllerType string

const (
	ControllerKeyboard ControllerType = "keyboard"
)

// ControllerConfig defines a saved controller configuration
type ControllerConfig struct {
	PortName     string         `json:"portName" toml:"portName" yaml:"portName"`
	Type         ControllerType `json:"type" toml:"type" yaml:"type"`
	AutoConnect  bool           `json:"autoConnect" toml:"autoConnect" yaml:"autoConnect"`
	InputChannel int            `json:"inputChannel,omitempty" toml:"inputChannel,omitempty" yaml:"inputChannel,omitempty"` // -1 listens on every channel
}

// StoreConfig says where notes live
type StoreConfig struct {
	Backend     StoreBackend `json:"backend" toml:"backend" yaml:"backend"`
	Path        string       `json:"path,omitempty" toml:"path,omitempty" yaml:"path,omitempty"`                      // sqlite file
	ProjectsDir string       `json:"projectsDir,omitempty" toml:"projectsDir,omitempty" yaml:"projectsDir,omitempty"` // memory saves
	Project     string       `json:"project,omitempty" toml:"project,omitempty" yaml:"project,omitempty"`
}

// EditorConfig holds the piano roll defaults
type EditorConfig struct {
	Tool            string  `json:"tool" toml:"tool" yaml:"tool"`
	NoteLength      int64   `json:"noteLength,omitempty" toml:"noteLength,omitempty" yaml:"noteLength,omitempty"`       // ticks, 0 follows the grid
	GridStepping    int64   `json:"gridStepping,omitempty" toml:"gridStepping,omitempty" yaml:"gridStepping,omitempty"` // ticks, 0 follows zoom
	ColumnsPerBeat  int     `json:"columnsPerBeat" toml:"columnsPerBeat" yaml:"columnsPerBeat"`
	Numerator       int     `json:"numerator" toml:"numerator" yaml:"numerator"`
	Denominator     int     `json:"denominator" toml:"denominator" yaml:"denominator"`
	SystemClipboard bool    `json:"systemClipboard" toml:"systemClipboard" yaml:"systemClipboard"`
	Tempo           float64 `json:"tempo,omitempty" toml:"tempo,omitempty" yaml:"tempo,omitempty"`
}

// DebugConfig enables the debug log
type DebugConfig struct {
	Enabled bool   `json:"enabled" toml:"enabled" yaml:"enabled"`
	Path    string `json:"path,omitempty" toml:"path,omitempty" yaml:"path,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Store       StoreConfig        `json:"store" toml:"store" yaml:"store"`
	Editor      EditorConfig       `json:"editor" toml:"editor" yaml:"editor"`
	Keymap      map[string]string  `json:"keymap,omitempty" toml:"keymap,omitempty" yaml:"keymap,omitempty"` // action -> chord
	Controllers []ControllerConfig `json:"controllers,omitempty" toml:"controllers,omitempty" yaml:"controllers,omitempty"`
	Theme       string             `json:"theme,omitempty" toml:"theme,omitempty" yaml:"theme,omitempty"`
	Debug       DebugConfig        `json:"debug" toml:"debug" yaml:"debug"`
}

// ErrUnknownFormat is returned for config files with an unsupported extension
var ErrUnknownFormat = errors.New("unknown config format")

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: StoreMemory,
			Project: "untitled",
		},
		Editor: EditorConfig{
			Tool:           "pen",
			ColumnsPerBeat: 4,
			Numerator:      4,
			Denominator:    4,
			Tempo:          120,
		},
		Controllers: []ControllerConfig{
			{Type: ControllerKeyboard, AutoConnect: true, InputChannel: -1},
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-pianoroll"), nil
}

// configNames are tried in order by ConfigPath
var configNames = []string{"config.toml", "config.yaml", "config.yml", "config.json"}

// ConfigPath returns the first existing config file, or config.toml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	for _, name := range configNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return filepath.Join(dir, configNames[0]), nil
}

// Load reads the default config file, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads path on top of the defaults. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func encode(path string, cfg *Config) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Marshal(cfg)
	case ".yaml", ".yml":
		return yaml.Marshal(cfg)
	case ".json":
		return json.MarshalIndent(cfg, "", "  ")
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Validate checks values a broken file could carry
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if _, ok := tools.ParseKind(c.Editor.Tool); !ok {
		return fmt.Errorf("unknown tool %q", c.Editor.Tool)
	}
	if c.Editor.NoteLength < 0 || c.Editor.GridStepping < 0 {
		return errors.New("note length and grid stepping must not be negative")
	}
	if c.Editor.ColumnsPerBeat <= 0 {
		return fmt.Errorf("columnsPerBeat must be positive, got %d", c.Editor.ColumnsPerBeat)
	}
	if d := c.Editor.Denominator; d <= 0 || d&(d-1) != 0 {
		return fmt.Errorf("denominator must be a power of two, got %d", d)
	}
	if c.Editor.Numerator <= 0 {
		return fmt.Errorf("numerator must be positive, got %d", c.Editor.Numerator)
	}
	return nil
}

// Save writes the config to the default path
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config in the format of path's extension
func (c *Config) SaveFile(path string) error {
	data, err := encode(path, c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Viewport returns the layout settings of the editor section
func (c *Config) Viewport() layout.Viewport {
	return layout.Viewport{
		GridStepping: c.Editor.GridStepping,
		Numerator:    c.Editor.Numerator,
		Denominator:  c.Editor.Denominator,
	}
}

// ToolKind returns the configured start tool
func (c *Config) ToolKind() tools.Kind {
	k, ok := tools.ParseKind(c.Editor.Tool)
	if !ok {
		return tools.KindPen
	}
	return k
}

// FindController finds a controller config by port name
func (c *Config) FindController(portName string) *ControllerConfig {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == portName {
			return &c.Controllers[i]
		}
	}
	return nil
}

// AddController adds or updates a controller config
func (c *Config) AddController(ctrl ControllerConfig) {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == ctrl.PortName {
			c.Controllers[i] = ctrl
			return
		}
	}
	c.Controllers = append(c.Controllers, ctrl)
}

// AutoConnectControllers returns controllers with autoConnect enabled
func (c *Config) AutoConnectControllers() []ControllerConfig {
	var result []ControllerConfig
	for _, ctrl := range c.Controllers {
		if ctrl.AutoConnect {
			result = append(result, ctrl)
		}
	}
	return result
}
