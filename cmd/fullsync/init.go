package main

import (
	"fmt"
	"os"
	"path/filepath"

	"fullsync/internal/config"
	"fullsync/internal/security"
	"fullsync/pkg/fileutil"
	"fullsync/pkg/templates"

	"github.com/spf13/cobra"
)

var (
	initForce   bool
	initSystemd bool
	initBranch  string
	initOwner   string
	initRepo    string
	initCommand string
	initUser    string
	initGroup   string
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter configuration",
	Long: `Write a starter fullsync.yaml with a freshly generated webhook secret.

The file is created with 0640 permissions at path (default ./fullsync.yaml).
With --systemd a service unit for the same configuration is printed instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
	initCmd.Flags().BoolVar(&initSystemd, "systemd", false, "Print a systemd unit instead of writing the config")
	initCmd.Flags().StringVar(&initBranch, "branch", config.DefaultSourceBranch, "Branch whose pushes trigger the job")
	initCmd.Flags().StringVar(&initOwner, "owner", "", "GitHub repository owner")
	initCmd.Flags().StringVar(&initRepo, "repo", "", "GitHub repository name")
	initCmd.Flags().StringVar(&initCommand, "command", "./full.sh", "Job command")
	initCmd.Flags().StringVar(&initUser, "user", "fullsync", "Service user, used with --systemd")
	initCmd.Flags().StringVar(&initGroup, "group", "fullsync", "Service group, used with --systemd")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configFileName
	if len(args) == 1 {
		path = args[0]
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	if initSystemd {
		return printSystemdUnit(cmd, absPath)
	}

	if fileutil.FileExists(absPath) && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	secret, err := security.GenerateSecret()
	if err != nil {
		return err
	}

	content, err := templates.RenderConfig(templates.ConfigData{
		Host:    config.DefaultHost,
		Port:    config.DefaultPort,
		Secret:  secret,
		Branch:  initBranch,
		Owner:   initOwner,
		Repo:    initRepo,
		Command: initCommand,
	})
	if err != nil {
		return err
	}

	// Refuse to write something serve would reject
	if _, err := config.Parse([]byte(content), func(string) string { return "" }); err != nil {
		return err
	}

	if err := security.CreateSecureDir(filepath.Dir(absPath), security.PermDirectory); err != nil {
		return err
	}
	if err := os.WriteFile(absPath, []byte(content), security.PermConfigFile); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(absPath, security.PermConfigFile); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	fmt.Fprintf(cmd.OutOrStdout(), "Webhook secret: %s\n", secret)
	return nil
}

func printSystemdUnit(cmd *cobra.Command, configPath string) error {
	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate fullsync binary: %w", err)
	}

	dir := filepath.Dir(configPath)
	unit, err := templates.RenderSystemdService(initUser, initGroup, dir, binary, configPath, filepath.Join(dir, "fullsync.log"))
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), unit)
	return nil
}
