// Package update runs the full update job: it resolves the head of the
// source branch, runs the configured command and reports a commit status.
package update

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fullsync/internal/config"
	"fullsync/internal/fetch"
	"fullsync/pkg/cmdutil"

	"github.com/google/go-github/v57/github"
)

// StatusContext is the commit status context reported to GitHub.
const StatusContext = "fullsync"

// Runner executes the full update. Its Run method is a coalesce.RunFunc.
type Runner struct {
	Command []string
	Dir     string
	Timeout time.Duration
	DryRun  bool

	// Token is handed to the job and redacted from its output.
	Token string

	Branch       string
	Owner        string
	Repo         string
	APIURL       string
	ReportStatus bool

	Fetcher *fetch.Fetcher
	GitHub  *github.Client
}

// New builds a Runner from cfg. GitHub calls share f's connection pool and
// credentials.
func New(cfg *config.Config, f *fetch.Fetcher) (*Runner, error) {
	r := &Runner{
		Command:      cfg.Job.Command,
		Dir:          cfg.Job.Dir,
		Timeout:      cfg.Job.Timeout,
		DryRun:       cfg.DryRun,
		Token:        cfg.GitHub.Token,
		Branch:       cfg.SourceBranch,
		Owner:        cfg.GitHub.Owner,
		Repo:         cfg.GitHub.Repo,
		APIURL:       cfg.GitHub.APIURL,
		ReportStatus: cfg.GitHub.ReportStatus,
		Fetcher:      f,
	}

	if cfg.GitHub.Enabled() {
		gh, err := newGitHubClient(f, cfg.GitHub.APIURL)
		if err != nil {
			return nil, err
		}
		r.GitHub = gh
	}
	return r, nil
}

func newGitHubClient(f *fetch.Fetcher, apiURL string) (*github.Client, error) {
	gh := github.NewClient(f.Client())
	if apiURL == "" || apiURL == config.DefaultAPIURL {
		return gh, nil
	}
	base, err := url.Parse(strings.TrimSuffix(apiURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL %q: %w", apiURL, err)
	}
	gh.BaseURL = base
	return gh, nil
}

// Run performs one full update, logging progress to log.
func (r *Runner) Run(ctx context.Context, log *slog.Logger, ts time.Time) error {
	log.Info("# " + ts.UTC().Format(time.RFC3339))
	log.Info("Starting full...")

	// Step 1: Resolve the commit being synced
	var sha string
	if r.repoConfigured() {
		head, err := r.resolveHead(ctx)
		if err != nil {
			log.Error("Failed to resolve branch head", "branch", r.Branch, "error", err)
			return fmt.Errorf("failed to resolve branch head: %w", err)
		}
		sha = head
		log.Info("Resolved branch head", "branch", r.Branch, "sha", sha)
	}

	r.reportStatus(ctx, log, sha, "pending", "Full update running")

	// Step 2: Run the command
	log.Info("Running command", "command", cmdutil.FormatCommand(r.Command), "dry_run", r.DryRun)
	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{
		Dir:     r.Dir,
		Timeout: r.Timeout,
		Env:     r.environ(ts, sha),
	}, r.Command)

	if result != nil {
		output := strings.TrimSpace(string(cmdutil.SanitizeOutput(result.Output, []string{r.Token})))
		if output != "" {
			log.Info(output)
		}
	}

	if err != nil {
		exitCode := -1
		if result != nil {
			exitCode = result.ExitCode
		}
		log.Error("Full update failed", "exit_code", exitCode, "error", err)
		r.reportStatus(ctx, log, sha, "failure", fmt.Sprintf("Full update failed with exit code %d", exitCode))
		return fmt.Errorf("full update failed: %w", err)
	}

	log.Info("Full update finished", "duration_ms", result.Duration.Milliseconds())

	// Step 3: Report success
	r.reportStatus(ctx, log, sha, "success", "Full update finished")
	return nil
}

func (r *Runner) repoConfigured() bool {
	return r.Owner != "" && r.Repo != ""
}

// resolveHead fetches the branch from the GitHub REST API and returns the
// SHA of its head commit.
func (r *Runner) resolveHead(ctx context.Context) (string, error) {
	apiURL := r.APIURL
	if apiURL == "" {
		apiURL = config.DefaultAPIURL
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/branches/%s",
		strings.TrimSuffix(apiURL, "/"),
		url.PathEscape(r.Owner), url.PathEscape(r.Repo), url.PathEscape(r.Branch))

	var branch github.Branch
	err := r.Fetcher.FetchJSON(ctx, fetch.Request{
		URL: endpoint,
		Header: http.Header{
			"Accept": {"application/vnd.github+json"},
		},
		Retries: fetch.UseDefaultRetries,
	}, &branch)
	if err != nil {
		return "", err
	}

	sha := branch.GetCommit().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("branch %s has no head commit", r.Branch)
	}
	return sha, nil
}

// reportStatus sets a commit status. Failures are logged, never returned.
func (r *Runner) reportStatus(ctx context.Context, log *slog.Logger, sha, state, description string) {
	if !r.ReportStatus || r.DryRun || r.GitHub == nil || sha == "" {
		return
	}

	_, _, err := r.GitHub.Repositories.CreateStatus(ctx, r.Owner, r.Repo, sha, &github.RepoStatus{
		State:       github.String(state),
		Description: github.String(description),
		Context:     github.String(StatusContext),
	})
	if err != nil {
		log.Warn("Failed to report commit status", "state", state, "error", err)
	}
}

func (r *Runner) environ(ts time.Time, sha string) []string {
	dryRun := "0"
	if r.DryRun {
		dryRun = "1"
	}
	env := []string{
		"FULLSYNC_DRY_RUN=" + dryRun,
		"FULLSYNC_TIMESTAMP=" + ts.UTC().Format(time.RFC3339),
		"FULLSYNC_BRANCH=" + r.Branch,
	}
	if sha != "" {
		env = append(env, "FULLSYNC_HEAD_SHA="+sha)
	}
	if r.Token != "" {
		env = append(env, "GITHUB_TOKEN="+r.Token)
	}
	return env
}
