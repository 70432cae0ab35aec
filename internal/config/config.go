// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/stream"
	"github.com/jeranaias/streamchat/internal/util"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete streamchat configuration.
type Config struct {
	Version string `toml:"version" json:"version" yaml:"version"`

	Backend BackendConfig `toml:"backend" json:"backend" yaml:"backend"`
	Mock    MockConfig    `toml:"mock" json:"mock" yaml:"mock"`
	Chat    ChatConfig    `toml:"chat" json:"chat" yaml:"chat"`
	Log     LogConfig     `toml:"log" json:"log" yaml:"log"`
	UI      UIConfig      `toml:"ui" json:"ui" yaml:"ui"`
}

// BackendConfig describes the streaming chat endpoint.
type BackendConfig struct {
	// URL of the chat endpoint
	URL string `toml:"url" json:"url" yaml:"url"`
	// Method is the HTTP method (default POST)
	Method string `toml:"method" json:"method" yaml:"method"`
	// FrameMode is "raw", "tagged" or "ndjson"
	FrameMode string `toml:"frame_mode" json:"frame_mode" yaml:"frame_mode"`
	// Model is sent as "model" when set
	Model string `toml:"model" json:"model" yaml:"model"`
	// ThreadIDPrefix is prepended to the conversation id in "threadId"
	ThreadIDPrefix string `toml:"thread_id_prefix" json:"thread_id_prefix" yaml:"thread_id_prefix"`
	// Headers are added to every request
	Headers map[string]string `toml:"headers" json:"headers,omitempty" yaml:"headers,omitempty"`
	// IncludeHistory sends prior messages of the conversation
	IncludeHistory bool `toml:"include_history" json:"include_history" yaml:"include_history"`
	// ResponseHeaderTimeoutSecs bounds the wait for response headers; 0 = none
	ResponseHeaderTimeoutSecs int `toml:"response_header_timeout_secs" json:"response_header_timeout_secs" yaml:"response_header_timeout_secs"`

	Generation GenerationConfig `toml:"generation" json:"generation" yaml:"generation"`
}

// GenerationConfig holds optional sampling parameters.
type GenerationConfig struct {
	Temperature float64 `toml:"temperature" json:"temperature" yaml:"temperature"`
	TopP        float64 `toml:"top_p" json:"top_p" yaml:"top_p"`
	MaxTokens   int     `toml:"max_tokens" json:"max_tokens" yaml:"max_tokens"`
}

// MockConfig configures the in-process mock backend.
type MockConfig struct {
	Enabled         bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Reply           string `toml:"reply" json:"reply" yaml:"reply"`
	ChunkIntervalMs int    `toml:"chunk_interval_ms" json:"chunk_interval_ms" yaml:"chunk_interval_ms"`
	// FrameMode of the mock stream; empty follows backend.frame_mode
	FrameMode string `toml:"frame_mode" json:"frame_mode" yaml:"frame_mode"`
	// FailAfter breaks the stream after that many chunks; 0 never
	FailAfter int `toml:"fail_after" json:"fail_after" yaml:"fail_after"`
}

// ChatConfig controls conversation behavior.
type ChatConfig struct {
	FailureMessage  string `toml:"failure_message" json:"failure_message" yaml:"failure_message"`
	TimestampFormat string `toml:"timestamp_format" json:"timestamp_format" yaml:"timestamp_format"`
	DefaultTitle    string `toml:"default_title" json:"default_title" yaml:"default_title"`
	TitleMaxWidth   int    `toml:"title_max_width" json:"title_max_width" yaml:"title_max_width"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `toml:"level" json:"level" yaml:"level"`
	// Format is "text" or "json"
	Format string `toml:"format" json:"format" yaml:"format"`
	// File receives log output; empty means stderr (the TUI always uses a file)
	File string `toml:"file" json:"file" yaml:"file"`
}

// UIConfig contains presentation settings.
type UIConfig struct {
	// Markdown renders completed agent messages with glamour
	Markdown bool `toml:"markdown" json:"markdown" yaml:"markdown"`
	// SidebarWidth in columns
	SidebarWidth int `toml:"sidebar_width" json:"sidebar_width" yaml:"sidebar_width"`
	// Theme is "dark", "light" or "auto"
	Theme string `toml:"theme" json:"theme" yaml:"theme"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Backend: BackendConfig{
			URL:       "http://127.0.0.1:8787/api/chat",
			Method:    http.MethodPost,
			FrameMode: string(stream.ModeRaw),
		},
		Mock: MockConfig{
			Enabled:         true,
			Reply:           "Of course! The weather in London is currently 15°C with light clouds. The forecast for the rest of the week looks pleasant.",
			ChunkIntervalMs: 100,
		},
		Chat: ChatConfig{
			FailureMessage:  "Sorry, something went wrong. Please try again.",
			TimestampFormat: "15:04",
			DefaultTitle:    "New Chat",
			TitleMaxWidth:   40,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		UI: UIConfig{
			Markdown:     true,
			SidebarWidth: 28,
			Theme:        "auto",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the streamchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".streamchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPath returns the file Load would read: $STREAMCHAT_CONFIG, then
// the first existing of config.toml, config.json, config.yaml, and
// config.toml when none exists.
func ConfigPath() (string, error) {
	if p := os.Getenv("STREAMCHAT_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	for _, name := range []string{"config.toml", "config.json", "config.yaml", "config.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load resolves ConfigPath and loads it. A missing file yields defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Default()
		return cfg, finalize(cfg)
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		cfg := Default()
		return cfg, finalize(cfg)
	}
	return LoadFromPath(path)
}

// LoadFromPath loads a config file, choosing the decoder by extension
// (.json, .yaml/.yml, otherwise TOML), then applies env overrides and
// validates.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadForEdit reads path without env overrides or validation, so that
// saving it back does not persist the environment. A missing file yields
// defaults.
func LoadForEdit(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data, formatOf(path))
}

// Format is a config file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Parse decodes data over the defaults and fills anything left empty.
// It does not apply env overrides or validate.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := Default()
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, cfg)
	case FormatYAML:
		err = yaml.Unmarshal(data, cfg)
	default:
		_, err = toml.Decode(string(data), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", format, err)
	}
	fillDefaults(cfg)
	return cfg, nil
}

func finalize(cfg *Config) error {
	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	// Backend
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = defaults.Backend.URL
	}
	if cfg.Backend.Method == "" {
		cfg.Backend.Method = defaults.Backend.Method
	}
	if cfg.Backend.FrameMode == "" {
		cfg.Backend.FrameMode = defaults.Backend.FrameMode
	}

	// Mock
	if cfg.Mock.Reply == "" {
		cfg.Mock.Reply = defaults.Mock.Reply
	}

	// Chat
	if cfg.Chat.FailureMessage == "" {
		cfg.Chat.FailureMessage = defaults.Chat.FailureMessage
	}
	if cfg.Chat.TimestampFormat == "" {
		cfg.Chat.TimestampFormat = defaults.Chat.TimestampFormat
	}
	if cfg.Chat.DefaultTitle == "" {
		cfg.Chat.DefaultTitle = defaults.Chat.DefaultTitle
	}
	if cfg.Chat.TitleMaxWidth == 0 {
		cfg.Chat.TitleMaxWidth = defaults.Chat.TitleMaxWidth
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}

	// UI
	if cfg.UI.SidebarWidth == 0 {
		cfg.UI.SidebarWidth = defaults.UI.SidebarWidth
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes cfg to path in the format implied by its extension. The
// file is replaced atomically with 0600 permissions.
func SaveTo(cfg *Config, path string) error {
	data, err := Encode(cfg, formatOf(path))
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Encode renders cfg in the given format.
func Encode(cfg *Config, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
		return data, nil
	default:
		var buf bytes.Buffer
		buf.WriteString("# streamchat configuration file\n")
		buf.WriteString("# Changes are picked up while streamchat is running.\n\n")
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
		return buf.Bytes(), nil
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(c.Backend.URL); err != nil {
		add("backend.url", "invalid URL: %v", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("backend.url", "scheme must be http or https, got %q", u.Scheme)
	} else if u.Host == "" {
		add("backend.url", "missing host")
	}

	switch strings.ToUpper(c.Backend.Method) {
	case http.MethodPost, http.MethodPut, http.MethodGet:
	default:
		add("backend.method", "must be GET, POST or PUT, got %q", c.Backend.Method)
	}

	if _, err := stream.ParseMode(c.Backend.FrameMode); err != nil {
		add("backend.frame_mode", "%v", err)
	}
	if c.Mock.FrameMode != "" {
		if _, err := stream.ParseMode(c.Mock.FrameMode); err != nil {
			add("mock.frame_mode", "%v", err)
		}
	}
	if c.Backend.ResponseHeaderTimeoutSecs < 0 {
		add("backend.response_header_timeout_secs", "must not be negative")
	}

	g := c.Backend.Generation
	if g.Temperature < 0 || g.Temperature > 2 {
		add("backend.generation.temperature", "must be between 0 and 2")
	}
	if g.TopP < 0 || g.TopP > 1 {
		add("backend.generation.top_p", "must be between 0 and 1")
	}
	if g.MaxTokens < 0 {
		add("backend.generation.max_tokens", "must not be negative")
	}

	if c.Mock.ChunkIntervalMs < 0 {
		add("mock.chunk_interval_ms", "must not be negative")
	}
	if c.Mock.FailAfter < 0 {
		add("mock.fail_after", "must not be negative")
	}

	if strings.TrimSpace(c.Chat.FailureMessage) == "" {
		add("chat.failure_message", "must not be empty")
	}
	if c.Chat.TitleMaxWidth < 8 || c.Chat.TitleMaxWidth > 200 {
		add("chat.title_max_width", "must be between 8 and 200")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level", "%v", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		add("log.format", "must be text or json, got %q", c.Log.Format)
	}

	if c.UI.SidebarWidth < 12 || c.UI.SidebarWidth > 60 {
		add("ui.sidebar_width", "must be between 12 and 60")
	}
	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		add("ui.theme", "must be dark, light or auto, got %q", c.UI.Theme)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - STREAMCHAT_BACKEND_URL: overrides backend.url
//   - STREAMCHAT_FRAME_MODE: overrides backend.frame_mode
//   - STREAMCHAT_MODEL: overrides backend.model
//   - STREAMCHAT_MOCK: "1"/"true" enables the mock backend, "0"/"false" disables it
//   - STREAMCHAT_LOG_LEVEL: overrides log.level
//   - STREAMCHAT_LOG_FILE: overrides log.file
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("STREAMCHAT_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("STREAMCHAT_FRAME_MODE"); v != "" {
		c.Backend.FrameMode = v
	}
	if v := os.Getenv("STREAMCHAT_MODEL"); v != "" {
		c.Backend.Model = v
	}
	if v := os.Getenv("STREAMCHAT_MOCK"); v != "" {
		c.Mock.Enabled = parseBool(v)
	}
	if v := os.Getenv("STREAMCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("STREAMCHAT_LOG_FILE"); v != "" {
		c.Log.File = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value by dot-notation key, e.g. "backend.frame_mode".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value by dot-notation key. String values are converted to
// the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts snake_case or kebab-case to a Go field name.
// Acronyms are matched case-insensitively by the caller, so "url" finds URL.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(part[:1]))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns every settable scalar key in dot notation.
func Keys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := strings.Split(f.Tag.Get("toml"), ",")[0]
			if name == "" {
				continue
			}
			switch f.Type.Kind() {
			case reflect.Struct:
				walk(f.Type, prefix+name+".")
			case reflect.Map:
			default:
				keys = append(keys, prefix+name)
			}
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// =============================================================================
// CLONE / STRING
// =============================================================================

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Backend.Headers != nil {
		clone.Backend.Headers = make(map[string]string, len(c.Backend.Headers))
		for k, v := range c.Backend.Headers {
			clone.Backend.Headers[k] = v
		}
	}
	return &clone
}

// String renders the config as JSON with header values redacted, since
// they commonly carry credentials.
func (c *Config) String() string {
	safe := c.Clone()
	for k := range safe.Backend.Headers {
		safe.Backend.Headers[k] = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the process-wide configuration, loading it on first use.
// A load failure falls back to defaults and is reported on stderr.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal replaces the process-wide configuration.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state between tests.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
