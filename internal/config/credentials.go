package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dshills/ai-peer-review/internal/fileutils"
	"github.com/spf13/viper"
	"github.com/ubuntu/decorate"
)

// serviceEnv lists, per credential service, the environment variables that
// may hold its key in lookup order.
var serviceEnv = map[string][]string{
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"google":    {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"deepseek":  {"DEEPSEEK_API_KEY"},
	"llama":     {"LLAMA_API_KEY", "TOGETHER_API_KEY"},
}

// serviceAliases maps accepted service spellings to canonical names.
var serviceAliases = map[string]string{
	"together": "llama",
	"gemini":   "google",
}

// Services returns the accepted service names for `config <service> <key>`.
func Services() []string {
	return []string{"openai", "anthropic", "google", "deepseek", "llama", "together"}
}

// CanonicalService resolves aliases and reports whether service is known.
func CanonicalService(service string) (string, bool) {
	service = strings.ToLower(strings.TrimSpace(service))
	if alias, ok := serviceAliases[service]; ok {
		service = alias
	}
	_, ok := serviceEnv[service]
	return service, ok
}

// EnvVar returns the primary environment variable for service.
func EnvVar(service string) string {
	service, _ = CanonicalService(service)
	if envs := serviceEnv[service]; len(envs) > 0 {
		return envs[0]
	}
	return ""
}

// APIKey resolves the key for service: environment first, then the config
// file. It returns "" when no key is available.
func (c Config) APIKey(service string) string {
	service, ok := CanonicalService(service)
	if !ok {
		return ""
	}
	for _, env := range serviceEnv[service] {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(c.APIKeys[service]); v != "" {
		return v
	}
	// Keys stored under an alias by older config files.
	for alias, canonical := range serviceAliases {
		if canonical == service {
			if v := strings.TrimSpace(c.APIKeys[alias]); v != "" {
				return v
			}
		}
	}
	return ""
}

// SetAPIKey stores key for service in the config file at path, creating the
// file if needed and preserving every other setting in it.
func SetAPIKey(path, service, key string) (err error) {
	defer decorate.OnError(&err, "could not set API key for %s", service)

	canonical, ok := CanonicalService(service)
	if !ok {
		return fmt.Errorf("unknown service %q (expected one of %s)", service, strings.Join(Services(), ", "))
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("API key must not be empty")
	}

	doc, err := readDocument(path)
	if err != nil {
		return err
	}

	keys, _ := doc["api_keys"].(map[string]any)
	if keys == nil {
		keys = map[string]any{}
	}
	keys[canonical] = strings.TrimSpace(key)
	doc["api_keys"] = keys

	if err := writeDocument(path, doc); err != nil {
		return err
	}
	slog.Debug("Stored API key", "service", canonical, "file", path)
	return nil
}

// LoadDotEnv exports the variables of a dotenv file into the process
// environment. Variables already set win over the file. A missing file is
// not an error.
func LoadDotEnv(path string) (err error) {
	defer decorate.OnError(&err, "could not load %s", path)

	exists, err := fileutils.FileExists(path)
	if err != nil || !exists {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return err
		}
		slog.Debug("Loaded variable from dotenv file", "name", name)
	}
	return nil
}
