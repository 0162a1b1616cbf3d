// Package hook registers the fullsync push webhook on a GitHub repository.
package hook

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// NewClient creates a GitHub client authenticated with token. apiURL
// selects a GitHub Enterprise API root; empty means api.github.com.
func NewClient(ctx context.Context, token, apiURL string) (*github.Client, error) {
	if token == "" {
		return nil, fmt.Errorf("a GitHub token is required to manage webhooks")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	if apiURL != "" && strings.TrimSuffix(apiURL, "/") != "https://api.github.com" {
		base, err := url.Parse(strings.TrimSuffix(apiURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", apiURL, err)
		}
		client.BaseURL = base
	}
	return client, nil
}

// Options describes the webhook to register.
type Options struct {
	// URL is the public address GitHub delivers pushes to.
	URL string

	// Secret signs every delivery.
	Secret string
}

// Result reports what Register did.
type Result struct {
	ID      int64
	Created bool
}

// Register makes sure owner/repo has an active push hook pointing at
// opts.URL. An existing hook for the same URL is left untouched.
func Register(ctx context.Context, client *github.Client, owner, repo string, opts Options) (*Result, error) {
	if err := validateURL(opts.URL); err != nil {
		return nil, err
	}
	if opts.Secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}

	existing, err := find(ctx, client, owner, repo, opts.URL)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Result{ID: existing.GetID()}, nil
	}

	active := true
	hookReq := &github.Hook{
		Events: []string{"push"},
		Active: &active,
		Config: map[string]interface{}{
			"url":          opts.URL,
			"content_type": "json",
			"secret":       opts.Secret,
			"insecure_ssl": "0",
		},
	}

	created, _, err := client.Repositories.CreateHook(ctx, owner, repo, hookReq)
	if err != nil {
		return nil, fmt.Errorf("creating webhook: %w", err)
	}
	return &Result{ID: created.GetID(), Created: true}, nil
}

// find returns the hook delivering to target, walking every page.
func find(ctx context.Context, client *github.Client, owner, repo, target string) (*github.Hook, error) {
	opts := &github.ListOptions{PerPage: 100}
	for {
		hooks, resp, err := client.Repositories.ListHooks(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing webhooks: %w", err)
		}
		for _, h := range hooks {
			if h.Config == nil {
				continue
			}
			if u, ok := h.Config["url"].(string); ok && u == target {
				return h, nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook URL must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}
