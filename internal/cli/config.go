package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/ai-peer-review/internal/config"
	"github.com/dshills/ai-peer-review/internal/fileutils"
	"github.com/dshills/ai-peer-review/internal/redact"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config <service> <api_key>",
		Short: "Set API key for a service, or manage the configuration",
		Long: "Set API key for a service (" + strings.Join(config.Services(), ", ") + ").\n\n" +
			"The key is stored under api_keys in the configuration file. Environment\n" +
			"variables such as OPENAI_API_KEY take precedence over stored keys.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := args[0]
			if _, ok := config.CanonicalService(service); !ok {
				return usageError("invalid service %q (choose from %s)", service, strings.Join(config.Services(), ", "))
			}
			path, err := config.Path(root.configFile)
			if err != nil {
				return runtimeError(err)
			}
			if err := config.SetAPIKey(path, service, args[1]); err != nil {
				return runtimeError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key for %s has been set successfully.\n", service)
			return nil
		},
	}

	cmd.AddCommand(newConfigShowCmd(root), newConfigInitCmd(root))
	return cmd
}

func newConfigInitCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Path(root.configFile)
			if err != nil {
				return runtimeError(err)
			}

			exists, err := fileutils.FileExists(path)
			if err != nil {
				return runtimeError(err)
			}
			if exists {
				fmt.Fprintf(cmd.ErrOrStderr(), "Config file already exists at %s\n", path)
				return nil
			}

			if err := config.Init(path); err != nil {
				return runtimeError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config file created at %s\n", path)
			return nil
		},
	}
}

// shownConfig is the config as printed by `config show`, keys masked.
type shownConfig struct {
	config.Config
	File        string            `json:"file,omitempty"`
	Credentials map[string]string `json:"credentials"`
}

func newConfigShowCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configFile, nil)
			if err != nil {
				return usageError("%v", err)
			}

			shown := shownConfig{Config: cfg, File: cfg.File, Credentials: make(map[string]string)}
			shown.APIKeys = make(map[string]string, len(cfg.APIKeys))
			for service, key := range cfg.APIKeys {
				shown.APIKeys[service] = redact.Key(key)
			}
			for _, service := range config.Services() {
				canonical, _ := config.CanonicalService(service)
				if canonical != service {
					continue
				}
				shown.Credentials[service] = credentialSource(cfg, service)
			}

			data, err := json.MarshalIndent(shown, "", "  ")
			if err != nil {
				return runtimeError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

// credentialSource describes where the key for service comes from.
func credentialSource(cfg config.Config, service string) string {
	key := cfg.APIKey(service)
	if key == "" {
		return "not set (" + config.EnvVar(service) + ")"
	}
	if env := config.EnvVar(service); os.Getenv(env) == key {
		return redact.Key(key) + " from " + env
	}
	if cfg.APIKeys[service] == key {
		return redact.Key(key) + " from config file"
	}
	return redact.Key(key) + " from environment"
}
