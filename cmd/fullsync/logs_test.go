package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"fullsync/internal/rollinglog"
)

// executeCommand runs the root command with args and resets package flag
// state afterwards.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		configFile = ""
		logsDB, logsName, logsLimit = "", "webhook-logs.md", 0
		initForce, initSystemd = false, false
		initBranch, initOwner, initRepo, initCommand = "master", "", "", "./full.sh"
		initUser, initGroup = "fullsync", "fullsync"
		hookURL = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	out, err := executeCommand(t, args...)
	if err != nil {
		t.Fatalf("Execute(%v) error: %v", args, err)
	}
	return out
}

func TestLogsCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fullsync.db")
	rl, err := rollinglog.Open(dbPath, "webhook-logs.md", 10)
	if err != nil {
		t.Fatalf("Failed to open rolling log: %v", err)
	}
	ctx := context.Background()
	for _, body := range []string{"first batch", "second batch", "third batch"} {
		if err := rl.Write(ctx, body); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
	}
	rl.Close()

	all := runCommand(t, "logs", "--db", dbPath)
	if strings.Index(all, "first batch") > strings.Index(all, "third batch") {
		t.Errorf("Expected oldest batch first, got %q", all)
	}

	recent := runCommand(t, "logs", "--db", dbPath, "-n", "2")
	if strings.Contains(recent, "first batch") {
		t.Errorf("Expected --limit 2 to leave out the oldest batch, got %q", recent)
	}
	if strings.Index(recent, "second batch") > strings.Index(recent, "third batch") || !strings.Contains(recent, "second batch") {
		t.Errorf("Expected the two newest batches oldest first, got %q", recent)
	}
}

func TestLogsCommand_Empty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	out := runCommand(t, "logs", "--db", dbPath)
	if !strings.Contains(out, "No entries in webhook-logs.md") {
		t.Errorf("Unexpected output %q", out)
	}
}

func TestSecretCommand(t *testing.T) {
	out := strings.TrimSpace(runCommand(t, "secret"))
	if len(out) != 64 {
		t.Errorf("Expected a 64 character secret, got %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out := runCommand(t, "version")
	if !strings.Contains(out, "fullsync version") {
		t.Errorf("Unexpected output %q", out)
	}
}
