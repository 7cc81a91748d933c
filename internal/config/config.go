package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dshills/ai-peer-review/internal/fileutils"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/ubuntu/decorate"
	"gopkg.in/yaml.v3"
)

const (
	// AppName names the config and cache directories.
	AppName = "ai-peer-review"
	// EnvPrefix prefixes environment overrides, e.g. AI_PEER_REVIEW_OUTPUT_DIR.
	EnvPrefix = "AI_PEER_REVIEW"
	// ConfigFileEnv points at a custom config file.
	ConfigFileEnv = EnvPrefix + "_CONFIG_FILE"
)

// Config represents the effective ai-peer-review configuration.
type Config struct {
	APIKeys           map[string]string `mapstructure:"api_keys" json:"api_keys,omitempty"`
	Prompts           map[string]string `mapstructure:"prompts" json:"prompts,omitempty"`
	Models            []string          `mapstructure:"models" json:"models,omitempty"`
	MetaReviewModel   string            `mapstructure:"meta_review_model" json:"meta_review_model"`
	OutputDir         string            `mapstructure:"output_dir" json:"output_dir"`
	MaxConcurrency    int               `mapstructure:"max_concurrency" json:"max_concurrency"`
	RequestsPerMinute int               `mapstructure:"requests_per_minute" json:"requests_per_minute"`
	MaxInputTokens    int               `mapstructure:"max_input_tokens" json:"max_input_tokens"`
	// MaxOutputTokens caps completions; 0 lets each model pick a budget,
	// larger for models that think before answering.
	MaxOutputTokens   int               `mapstructure:"max_output_tokens" json:"max_output_tokens"`
	Temperature       float64           `mapstructure:"temperature" json:"temperature"`
	Cache             CacheConfig       `mapstructure:"cache" json:"cache"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" json:"-"`
}

// CacheConfig controls caching of model responses.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled" json:"enabled"`
	Dir        string `mapstructure:"dir" json:"dir,omitempty"`
	TTLSeconds int    `mapstructure:"ttl_seconds" json:"ttl_seconds"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		APIKeys:         map[string]string{},
		Prompts:         map[string]string{},
		MetaReviewModel: "gemini-2.5-pro",
		OutputDir:       "./papers",
		MaxConcurrency:  3,
		MaxInputTokens:  100000,
		MaxOutputTokens: 0,
		Temperature:     0.2,
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 7 * 24 * 3600,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("models", []string{})
	v.SetDefault("meta_review_model", d.MetaReviewModel)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("max_concurrency", d.MaxConcurrency)
	v.SetDefault("requests_per_minute", d.RequestsPerMinute)
	v.SetDefault("max_input_tokens", d.MaxInputTokens)
	v.SetDefault("max_output_tokens", d.MaxOutputTokens)
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.ttl_seconds", d.Cache.TTLSeconds)
}

// ConfigDir returns the platform-appropriate config directory.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppName), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppName), nil
		}
		return filepath.Join(home, "AppData", "Roaming", AppName), nil
	default:
		return filepath.Join(home, ".config", AppName), nil
	}
}

// Path returns custom when set, otherwise the default config file path.
func Path(custom string) (string, error) {
	if custom != "" {
		return custom, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// path selects the config file (see [Path]); a missing file is not an error.
// overrides are keyed like the config file, e.g. "cache.enabled".
func Load(path string, overrides map[string]any) (Config, error) {
	file, err := Path(path)
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)

	exists, err := fileutils.FileExists(file)
	if err != nil {
		return Config{}, fmt.Errorf("checking config file: %w", err)
	}
	if exists {
		v.SetConfigFile(file)
		v.SetConfigType(formatOf(file))
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("invalid configuration file: %w", err)
		}
		slog.Info("Using configuration file", "file", file)
	} else {
		slog.Debug("No configuration file, using defaults, env variables and flags", "file", file)
		file = ""
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, val := range overrides {
		v.Set(k, val)
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.Models = trimAll(cfg.Models)
	if cfg.APIKeys == nil {
		cfg.APIKeys = map[string]string{}
	}
	if cfg.Prompts == nil {
		cfg.Prompts = map[string]string{}
	}
	cfg.File = file

	return cfg, nil
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency))
	}
	if c.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("requests_per_minute must not be negative, got %d", c.RequestsPerMinute))
	}
	if c.MaxOutputTokens < 0 || c.MaxInputTokens < 0 {
		errs = append(errs, errors.New("token limits must not be negative"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be between 0 and 2, got %g", c.Temperature))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir must not be empty"))
	}
	return errors.Join(errs...)
}

// Prompt returns the configured prompt template called name, or "" when the
// config does not override it. Blank templates count as not set.
func (c Config) Prompt(name string) string {
	if strings.TrimSpace(c.Prompts[name]) == "" {
		return ""
	}
	return c.Prompts[name]
}

// Init writes a config file populated with defaults at path. It refuses to
// overwrite an existing file.
func Init(path string) (err error) {
	defer decorate.OnError(&err, "could not initialize config file %s", path)

	exists, err := fileutils.FileExists(path)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("file already exists")
	}

	d := Default()
	doc := map[string]any{
		"meta_review_model":   d.MetaReviewModel,
		"output_dir":          d.OutputDir,
		"max_concurrency":     d.MaxConcurrency,
		"requests_per_minute": d.RequestsPerMinute,
		"max_input_tokens":    d.MaxInputTokens,
		"max_output_tokens":   d.MaxOutputTokens,
		"temperature":         d.Temperature,
		"cache": map[string]any{
			"enabled":     d.Cache.Enabled,
			"ttl_seconds": d.Cache.TTLSeconds,
		},
	}
	return writeDocument(path, doc)
}

// readDocument decodes a config file into a generic document so that keys
// this program does not know about survive a rewrite.
func readDocument(path string) (map[string]any, error) {
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}

	switch formatOf(path) {
	case "json":
		err = json.Unmarshal(data, &doc)
	case "toml":
		err = toml.Unmarshal(data, &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// writeDocument encodes doc in the format implied by the path extension and
// writes it with owner-only permissions since it may hold API keys.
func writeDocument(path string, doc map[string]any) (err error) {
	defer decorate.OnError(&err, "could not write %s", path)

	var data []byte
	switch formatOf(path) {
	case "json":
		data, err = json.MarshalIndent(doc, "", "  ")
		data = append(data, '\n')
	case "toml":
		var b strings.Builder
		err = toml.NewEncoder(&b).Encode(doc)
		data = []byte(b.String())
	default:
		data, err = yaml.Marshal(doc)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return fileutils.AtomicWrite(path, data, 0o600)
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Keys returns the sorted service names with a stored key.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c.APIKeys))
	for k, v := range c.APIKeys {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
