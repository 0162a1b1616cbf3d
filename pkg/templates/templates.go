package templates

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// Template names
const (
	Config         = "config"
	SystemdService = "systemd-service"
)

//go:embed builtin/*.template
var builtin embed.FS

// TemplateData holds variables for template rendering.
type TemplateData map[string]string

// GetTemplatePaths returns the override search paths for templates
func GetTemplatePaths(templateName string) []string {
	filename := templateName + ".template"
	return []string{
		filepath.Join(".", "templates", filename),
		filepath.Join("/etc", "fullsync", "templates", filename),
	}
}

// GetTemplate returns the raw template content by name.
// Templates are loaded in the following order:
// 1. ./templates/<name>.template
// 2. /etc/fullsync/templates/<name>.template
// 3. the built-in template
func GetTemplate(name string) (string, error) {
	if !ValidateTemplate(name) {
		return "", fmt.Errorf("unknown template: %s (available: %s)", name, strings.Join(ListTemplates(), ", "))
	}

	for _, path := range GetTemplatePaths(name) {
		if content, err := os.ReadFile(path); err == nil {
			return string(content), nil
		}
	}

	content, err := builtin.ReadFile("builtin/" + name + ".template")
	if err != nil {
		return "", fmt.Errorf("template file not found: %s: %w", name, err)
	}
	return string(content), nil
}

// Render renders a template with the given data.
// Uses {{PLACEHOLDER}} syntax for variable substitution. Placeholders
// without a value are reported as an error.
//
// Example:
//
//	data := TemplateData{
//	    "USER":  "fullsync",
//	    "GROUP": "fullsync",
//	}
//	rendered, err := Render(SystemdService, data)
func Render(templateName string, data TemplateData) (string, error) {
	tmplContent, err := GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	rendered := tmplContent
	for key, value := range data {
		placeholder := fmt.Sprintf("{{%s}}", key)
		rendered = strings.ReplaceAll(rendered, placeholder, value)
	}

	if missing := placeholders(rendered); len(missing) > 0 {
		return "", fmt.Errorf("template %s: missing values for %s", templateName, strings.Join(missing, ", "))
	}
	return rendered, nil
}

// placeholders lists the distinct {{NAME}} markers left in s.
func placeholders(s string) []string {
	seen := make(map[string]bool)
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			break
		}
		seen[s[start+2:start+end]] = true
		s = s[start+end+2:]
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConfigData holds the values for the starter configuration.
type ConfigData struct {
	Host    string
	Port    int
	Secret  string
	Branch  string
	Owner   string
	Repo    string
	Command string
}

// RenderConfig renders the starter fullsync.yaml.
func RenderConfig(d ConfigData) (string, error) {
	return Render(Config, TemplateData{
		"HOST":    d.Host,
		"PORT":    fmt.Sprintf("%d", d.Port),
		"SECRET":  d.Secret,
		"BRANCH":  d.Branch,
		"OWNER":   d.Owner,
		"REPO":    d.Repo,
		"COMMAND": d.Command,
	})
}

// RenderSystemdService renders the systemd service template.
func RenderSystemdService(user, group, workingDir, binary, configPath, logFile string) (string, error) {
	return Render(SystemdService, TemplateData{
		"USER":        user,
		"GROUP":       group,
		"WORKING_DIR": workingDir,
		"BINARY":      binary,
		"CONFIG":      configPath,
		"LOG_FILE":    logFile,
	})
}

// ListTemplates returns a list of all available template names.
func ListTemplates() []string {
	return []string{
		Config,
		SystemdService,
	}
}

// ValidateTemplate checks if a template name is valid.
func ValidateTemplate(name string) bool {
	return slices.Contains(ListTemplates(), name)
}
