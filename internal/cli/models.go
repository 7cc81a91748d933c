package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/ai-peer-review/internal/config"
	"github.com/dshills/ai-peer-review/internal/providers"
)

func newListModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-models",
		Short: "List all available models for review",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printModels(cmd)
		},
	}
}

func printModels(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Available models for peer review:")
	for _, m := range providers.ModelNames() {
		fmt.Fprintf(out, "- %s\n", m)
	}
	fmt.Fprintf(out, "\nUse these model names with the --models option when running '%s review'.\n", config.AppName)
}

func newModelsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Model catalog and credential checks",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all available models for review",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printModels(cmd)
		},
	}

	var models string
	doctor := &cobra.Command{
		Use:   "doctor",
		Short: "Validate provider credentials by pinging each model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, root, splitComma(models))
		},
	}
	doctor.Flags().StringVar(&models, "models", "", "Comma-separated list of models to check. Default is all supported models.")

	cmd.AddCommand(list, doctor)
	return cmd
}

func runDoctor(cmd *cobra.Command, root *rootOptions, requested []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(root.configFile, nil)
	if err != nil {
		return usageError("%v", err)
	}
	if len(requested) == 0 {
		requested = cfg.Models
	}
	selected, unknown := providers.SelectModels(requested)
	if len(unknown) > 0 {
		return usageError("unknown model(s): %s", strings.Join(unknown, ", "))
	}

	newClient := newClientFactory(cfg)
	var authFailures, failures int
	for _, name := range selected {
		info, _ := providers.Lookup(name)
		fmt.Fprintf(out, "Checking %s (%s)... ", name, info.APIModel)

		err := pingModel(cmd.Context(), newClient, info)
		if err != nil {
			failures++
			if providers.IsAuthError(err) {
				authFailures++
			}
			fmt.Fprintf(out, "%s\n", progressFail.Render("FAIL: "+err.Error()))
			continue
		}
		fmt.Fprintln(out, progressOK.Render("OK"))
	}

	switch {
	case failures == 0:
		return nil
	case authFailures == failures:
		return silentExit{code: ExitAuthError}
	default:
		return silentExit{code: ExitRuntimeError}
	}
}

// Completion budgets for the doctor ping. Thinking models spend hidden tokens
// from the same budget and return no text when it runs out first.
const (
	pingTokens          = 16
	reasoningPingTokens = 2048
)

func pingModel(ctx context.Context, newClient func(providers.ModelInfo) (providers.Generator, error), info providers.ModelInfo) error {
	g, err := newClient(info)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	maxTokens := pingTokens
	if info.Reasoning {
		maxTokens = reasoningPingTokens
	}
	_, err = g.Generate(ctx, providers.Request{
		SystemPrompt: "Respond with exactly: ok",
		UserPrompt:   "ping",
		MaxTokens:    info.OutputBudget(maxTokens),
	})
	return err
}
