package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repro.yaml")
	yml := `
listen: ":9000"
store:
  path: /var/lib/repro/repro.db
browser:
  mode: http
recorder:
  max_bytes: 1048576
  snapshot_interval: 10s
pages:
  - url: https://example.com
  - url: https://app.example.com
    acquire: browser
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Listen != ":9000" || cfg.Store.Path != "/var/lib/repro/repro.db" || cfg.Browser.Mode != "http" {
		t.Errorf("explicit values lost: %+v", cfg)
	}
	if cfg.Recorder.MaxBytes != 1<<20 || cfg.Recorder.SnapshotInterval != 10*time.Second {
		t.Errorf("recorder = %+v", cfg.Recorder)
	}
	if cfg.Pages[0].Acquire != "auto" || cfg.Pages[1].Acquire != "browser" {
		t.Errorf("pages = %+v", cfg.Pages)
	}
	if cfg.Debounce.Window != 250*time.Millisecond || cfg.Recorder.TailBuffer != 1024 {
		t.Errorf("defaults not applied: %+v %+v", cfg.Debounce, cfg.Recorder)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8420" || cfg.Browser.Mode != "headless" || cfg.MCP.Path != "/mcp" || cfg.Report.MinLevel != "warn" {
		t.Errorf("Default() = %+v", cfg)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		yml  string
		want string
	}{
		{"browser: {mode: firefox}", "browser.mode"},
		{"pages: [{acquire: http}]", "url is required"},
		{"pages: [{url: 'https://x', acquire: ftp}]", "acquire"},
		{"listen: [", "config:"},
	}
	for _, tt := range tests {
		_, err := Parse([]byte(tt.yml))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Parse(%q) error = %v, want %q", tt.yml, err, tt.want)
		}
	}
}
