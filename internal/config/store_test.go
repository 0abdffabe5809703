package config

import (
	"os"
	"path/filepath"
	"testing"

	"clip-flow/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.Provider != domain.ProviderLocal {
		t.Fatalf("provider = %q, want local", cfg.Provider)
	}
	if cfg.Language != "auto" {
		t.Fatalf("language = %q, want auto", cfg.Language)
	}
	if cfg.OutputDir == "" {
		t.Fatal("expected non-empty output dir")
	}
	if cfg.TranscriptionConcurrency != 1 {
		t.Fatalf("transcription concurrency = %d, want 1", cfg.TranscriptionConcurrency)
	}
}

// TestNormalizeRepairsInvalidValues checks enum and concurrency fallbacks.
func TestNormalizeRepairsInvalidValues(t *testing.T) {
	got := Normalize(domain.Settings{
		Provider:                 "bogus",
		SummaryProvider:          "bogus",
		ModelID:                  "  small  ",
		TranscriptionConcurrency: -3,
	})

	if got.Provider != domain.ProviderLocal {
		t.Fatalf("provider = %q, want local", got.Provider)
	}
	if got.SummaryProvider != domain.ProviderOllama {
		t.Fatalf("summary provider = %q, want ollama", got.SummaryProvider)
	}
	if got.ModelID != "small" {
		t.Fatalf("model id = %q, want small", got.ModelID)
	}
	if got.TranscriptionConcurrency != 1 {
		t.Fatalf("transcription concurrency = %d, want 1", got.TranscriptionConcurrency)
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Language != "auto" {
		t.Fatalf("language = %q, want auto", got.Language)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := domain.Settings{
		Provider:                 domain.ProviderOpenAI,
		ModelID:                  "small",
		Language:                 "en",
		SummaryProvider:          domain.ProviderClaude,
		SummaryModel:             "claude-3-5-haiku-latest",
		OutputDir:                "/out",
		TranscriptionConcurrency: 1,
		SummarizationConcurrency: 2,
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

// TestJSONStoreSaveLeavesNoTempFile checks the staged write cleans up after
// itself and replaces prior content.
func TestJSONStoreSaveLeavesNoTempFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")
	path := filepath.Join(dir, "settings.json")
	store := NewJSONStore(path)

	first := DefaultSettings()
	if err := store.Save(first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second := first
	second.Language = "de"
	if err := store.Save(second); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: stat err = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Language != "de" {
		t.Fatalf("language = %q, want de", got.Language)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("settings dir has %d entries, want 1", len(entries))
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}
