package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetTemplate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name         string
		templateName string
		wantErr      bool
		contains     string
	}{
		{"config template", Config, false, "source_branch: {{BRANCH}}"},
		{"systemd template", SystemdService, false, "ExecStart={{BINARY}} serve"},
		{"unknown template", "nginx-site", true, ""},
		{"empty name", "", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetTemplate(tt.templateName)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetTemplate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && !strings.Contains(got, tt.contains) {
				t.Errorf("GetTemplate() = %q, want it to contain %q", got, tt.contains)
			}
		})
	}
}

func TestGetTemplate_LocalOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	templatesDir := filepath.Join(tmpDir, "templates")
	if err := os.MkdirAll(templatesDir, 0755); err != nil {
		t.Fatalf("Failed to create templates directory: %v", err)
	}
	override := "[Service]\nUser={{USER}}\n"
	if err := os.WriteFile(filepath.Join(templatesDir, "systemd-service.template"), []byte(override), 0644); err != nil {
		t.Fatalf("Failed to write override: %v", err)
	}

	got, err := GetTemplate(SystemdService)
	if err != nil {
		t.Fatalf("GetTemplate() error = %v", err)
	}
	if got != override {
		t.Errorf("GetTemplate() = %q, want local override", got)
	}

	// Other templates still come from the built-in set
	if _, err := GetTemplate(Config); err != nil {
		t.Errorf("GetTemplate(config) error = %v", err)
	}
}

func TestRender(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("all placeholders filled", func(t *testing.T) {
		got, err := RenderSystemdService("fullsync", "www-data", "/srv/site", "/usr/local/bin/fullsync", "/etc/fullsync/fullsync.yaml", "/var/log/fullsync.log")
		if err != nil {
			t.Fatalf("RenderSystemdService() error = %v", err)
		}
		for _, want := range []string{
			"User=fullsync",
			"Group=www-data",
			"WorkingDirectory=/srv/site",
			"ExecStart=/usr/local/bin/fullsync serve --config /etc/fullsync/fullsync.yaml --log /var/log/fullsync.log",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("Rendered unit missing %q:\n%s", want, got)
			}
		}
		if strings.Contains(got, "{{") {
			t.Errorf("Rendered unit still has placeholders:\n%s", got)
		}
	})

	t.Run("missing placeholders", func(t *testing.T) {
		_, err := Render(SystemdService, TemplateData{"USER": "fullsync"})
		if err == nil {
			t.Fatal("Render() should fail when placeholders are left")
		}
		if !strings.Contains(err.Error(), "GROUP") || !strings.Contains(err.Error(), "BINARY") {
			t.Errorf("Expected missing names in error, got %v", err)
		}
	})
}

func TestRenderConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	got, err := RenderConfig(ConfigData{
		Host:    "127.0.0.1",
		Port:    9000,
		Secret:  "abc123",
		Branch:  "main",
		Owner:   "acme",
		Repo:    "site",
		Command: "./full.sh",
	})
	if err != nil {
		t.Fatalf("RenderConfig() error = %v", err)
	}
	for _, want := range []string{"host: 127.0.0.1", "port: 9000", `secret: "abc123"`, "source_branch: main", `owner: "acme"`, `command: "./full.sh"`} {
		if !strings.Contains(got, want) {
			t.Errorf("Rendered config missing %q:\n%s", want, got)
		}
	}
}

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"no markers", nil},
		{"{{A}} and {{B}} and {{A}}", []string{"A", "B"}},
		{"unterminated {{A", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := placeholders(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("placeholders() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("placeholders() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestGetTemplate_UnknownListsAvailable(t *testing.T) {
	_, err := GetTemplate("nginx-site")
	if err == nil {
		t.Fatal("GetTemplate() should reject unknown names")
	}
	for _, name := range []string{Config, SystemdService} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("Expected %q in error, got %v", name, err)
		}
	}
}
