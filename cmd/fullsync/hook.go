package main

import (
	"context"
	"fmt"

	"fullsync/internal/config"
	"fullsync/internal/hook"

	"github.com/spf13/cobra"
)

var hookURL string

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Register the push webhook on GitHub",
	Long: `Create a push webhook on the configured repository that delivers to
--url and is signed with the configured secret. Nothing changes if a hook
for the same URL already exists.

Requires github.owner, github.repo and a token in github.token_env.`,
	Args: cobra.NoArgs,
	RunE: runHook,
}

func init() {
	hookCmd.Flags().StringVar(&hookURL, "url", getEnvOrDefault("FULLSYNC_PUBLIC_URL", ""), "Public URL GitHub delivers pushes to")
}

func runHook(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.GitHub.Enabled() {
		return fmt.Errorf("github.owner and github.repo must be set to register a webhook")
	}

	ctx := context.Background()
	client, err := hook.NewClient(ctx, cfg.GitHub.Token, cfg.GitHub.APIURL)
	if err != nil {
		return err
	}

	result, err := hook.Register(ctx, client, cfg.GitHub.Owner, cfg.GitHub.Repo, hook.Options{
		URL:    hookURL,
		Secret: cfg.Secret,
	})
	if err != nil {
		return err
	}

	repo := cfg.GitHub.Owner + "/" + cfg.GitHub.Repo
	if result.Created {
		fmt.Fprintf(cmd.OutOrStdout(), "Created webhook %d on %s for %s\n", result.ID, repo, hookURL)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Webhook %d on %s already delivers to %s\n", result.ID, repo, hookURL)
	}
	return nil
}
