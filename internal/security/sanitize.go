package security

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	branchPattern = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	// GitHub owner and repository names
	slugPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// ValidateBranchName ensures the configured branch can be compared against
// push refs and passed to the job without quoting surprises.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}
	if strings.HasPrefix(branch, "refs/") {
		return fmt.Errorf("branch name must not include the refs/heads/ prefix")
	}
	if strings.Contains(branch, "..") {
		return fmt.Errorf("branch name cannot contain '..'")
	}
	if !branchPattern.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters")
	}
	return nil
}

// ValidateRepoSlug checks a GitHub owner or repository name.
func ValidateRepoSlug(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%s cannot start with '-' or '.'", kind)
	}
	if !slugPattern.MatchString(name) {
		return fmt.Errorf("%s contains invalid characters (only a-z, A-Z, 0-9, _, ., - allowed)", kind)
	}
	return nil
}
