package main

import (
	"context"
	"fmt"
	"strings"

	"fullsync/internal/config"
	"fullsync/internal/rollinglog"

	"github.com/spf13/cobra"
)

var (
	logsDB    string
	logsName  string
	logsLimit int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the rolling webhook log",
	Long: `Print the retained request and job logs, oldest first.

The database and log name come from the configuration file unless --db is
given.`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().StringVar(&logsDB, "db", getEnvOrDefault("FULLSYNC_DB_PATH", ""), "Path to the rolling log database (skips the config file)")
	logsCmd.Flags().StringVar(&logsName, "name", config.DefaultRollingLogName, "Rolling log name, used with --db")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 0, "Only print the most recent N batches")
}

func runLogs(cmd *cobra.Command, args []string) error {
	dbPath, name, capacity := logsDB, logsName, config.DefaultRollingLogSize
	if dbPath == "" {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		dbPath, name, capacity = cfg.RollingLog.DB, cfg.RollingLog.Name, cfg.RollingLog.Capacity
	}

	rl, err := rollinglog.Open(dbPath, name, capacity)
	if err != nil {
		return fmt.Errorf("failed to open rolling log: %w", err)
	}
	defer rl.Close()

	ctx := context.Background()
	if logsLimit <= 0 {
		doc, err := rl.Render(ctx)
		if err != nil {
			return err
		}
		if doc == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "No entries in %s\n", name)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), doc)
		return nil
	}

	entries, err := rl.Entries(ctx, logsLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No entries in %s\n", name)
		return nil
	}

	bodies := make([]string, len(entries))
	for i, e := range entries {
		// Entries are newest first; print oldest first
		bodies[len(entries)-1-i] = e.Body
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(bodies, "\n\n"))
	return nil
}
