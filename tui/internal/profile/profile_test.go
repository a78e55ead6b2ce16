package profile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if p.URL != DefaultURL || p.Token != "" {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tui.yaml")
	if err := os.WriteFile(path, []byte("url: wss://desk.local:9000/ws\ntoken: s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.URL != "wss://desk.local:9000/ws" || p.Token != "s3cret" {
		t.Errorf("unexpected profile %+v", p)
	}
	if got := p.HTTPBase(); got != "https://desk.local:9000" {
		t.Errorf("HTTPBase() = %q", got)
	}
}

func TestLoadEmptyURLFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tui.yaml")
	if err := os.WriteFile(path, []byte("token: abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.URL != DefaultURL {
		t.Errorf("URL = %q", p.URL)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tui.yaml")
	if err := os.WriteFile(path, []byte("url: [unterminated\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestHTTPBase(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"ws://127.0.0.1:7878/ws", "http://127.0.0.1:7878"},
		{"wss://example.com/ws", "https://example.com"},
		{"::bad", "http://127.0.0.1:7878"},
	}
	for _, tt := range tests {
		if got := (Profile{URL: tt.url}).HTTPBase(); got != tt.want {
			t.Errorf("HTTPBase(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
