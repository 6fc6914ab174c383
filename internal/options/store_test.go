package options

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newStore(t *testing.T, content string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config", "config.json")
	if content != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func defineAll(t *testing.T, s *Store) {
	t.Helper()
	defs := []Option{
		{Key: "title", Label: "Page title", Value: "Device"},
		{Key: "token", Kind: KindSecret},
		{Key: "interval", Kind: KindNumber, Value: 5.0, Min: Bound(1), Max: Bound(60)},
		{Key: "led", Kind: KindBool, Value: true},
		{Key: "mode", Kind: KindSelect, Choices: []string{"auto", "manual"}},
	}
	for _, d := range defs {
		if err := s.Define(d); err != nil {
			t.Fatalf("Define(%s) error = %v", d.Key, err)
		}
	}
}

func TestDefineDefaults(t *testing.T) {
	s := newStore(t, "")
	defineAll(t, s)

	if got := s.GetString("title"); got != "Device" {
		t.Errorf("title = %q, want Device", got)
	}
	if got := s.GetNumber("interval"); got != 5 {
		t.Errorf("interval = %v, want 5", got)
	}
	if !s.GetBool("led") {
		t.Error("led should default to true")
	}
	if got := s.GetString("mode"); got != "auto" {
		t.Errorf("mode = %q, want first choice", got)
	}

	list := s.List()
	if len(list) != 5 || list[0].Key != "title" || list[4].Key != "mode" {
		t.Errorf("List() order = %+v", list)
	}
}

func TestOpenReadsComments(t *testing.T) {
	s := newStore(t, `{
  // set by the installer
  "title": "Kitchen tap",
  "interval": 12,
  /* not declared */ "extra": "kept",
}`)
	defineAll(t, s)

	if got := s.GetString("title"); got != "Kitchen tap" {
		t.Errorf("title = %q, want stored value", got)
	}
	if got := s.GetNumber("interval"); got != 12 {
		t.Errorf("interval = %v, want 12", got)
	}
	if v, ok := s.Get("extra"); !ok || v != "kept" {
		t.Errorf("Get(extra) = %v, %v", v, ok)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, nil); err == nil {
		t.Error("Open() should fail on a malformed document")
	}
}

func TestSetValidates(t *testing.T) {
	s := newStore(t, "")
	defineAll(t, s)

	tests := []struct {
		key     string
		value   any
		wantErr bool
	}{
		{"interval", "30", false},
		{"interval", "0", true},
		{"interval", "abc", true},
		{"led", "false", false},
		{"mode", "manual", false},
		{"mode", "turbo", true},
		{"nope", "x", true},
	}
	for _, tt := range tests {
		err := s.Set(tt.key, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("Set(%s, %v) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
		}
	}
	if s.GetNumber("interval") != 30 || s.GetBool("led") || s.GetString("mode") != "manual" {
		t.Error("valid Set calls should have been applied")
	}
}

func TestSetForm(t *testing.T) {
	s := newStore(t, `{"token": "keep-me"}`)
	defineAll(t, s)

	form := url.Values{
		"title":    {"Bathroom"},
		"token":    {""},
		"interval": {"20"},
		"mode":     {"manual"},
	}
	if err := s.SetForm(form); err != nil {
		t.Fatalf("SetForm() error = %v", err)
	}

	if s.GetString("title") != "Bathroom" {
		t.Errorf("title = %q", s.GetString("title"))
	}
	if s.GetString("token") != "keep-me" {
		t.Error("an empty secret field must keep the stored value")
	}
	if s.GetBool("led") {
		t.Error("an unchecked checkbox should turn the option off")
	}
	if s.GetNumber("interval") != 20 {
		t.Errorf("interval = %v", s.GetNumber("interval"))
	}

	if err := s.SetForm(url.Values{"interval": {"999"}}); err == nil {
		t.Error("SetForm() should reject out of range numbers")
	}
}

func TestSaveAndClear(t *testing.T) {
	s := newStore(t, `{"extra": 1}`)
	defineAll(t, s)

	if err := s.Set("title", "Saved"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"title": "Saved"`) || !strings.Contains(string(data), `"extra": 1`) {
		t.Errorf("saved document = %s", data)
	}

	reopened, err := Open(s.Path(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defineAll(t, reopened)
	if reopened.GetString("title") != "Saved" {
		t.Errorf("reopened title = %q", reopened.GetString("title"))
	}

	if err := reopened.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Error("Clear() should remove the document")
	}
	if reopened.GetString("title") != "Device" {
		t.Errorf("title after Clear = %q, want default", reopened.GetString("title"))
	}
	if err := reopened.Clear(); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}
