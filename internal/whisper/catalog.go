package whisper

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clip-flow/internal/domain"
)

const (
	modelBaseURL         = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"
	modelDownloadTimeout = 30 * time.Minute
)

// catalogEntry is one downloadable whisper.cpp model preset.
type catalogEntry struct {
	id          string
	name        string
	sizeLabel   string
	description string
}

var modelCatalog = []catalogEntry{
	{"tiny.en", "Tiny (English)", "~75 MB", "Fastest, English-only model."},
	{"tiny", "Tiny (Multilingual)", "~75 MB", "Fastest multilingual model."},
	{"base.en", "Base (English)", "~142 MB", "Balanced speed/quality, English-only."},
	{"base", "Base (Multilingual)", "~142 MB", "Balanced speed/quality, multilingual."},
	{"small.en", "Small (English)", "~466 MB", "Higher quality, English-only."},
	{"small", "Small (Multilingual)", "~466 MB", "Higher quality multilingual model."},
	{"medium.en", "Medium (English)", "~1.5 GB", "High quality, English-only."},
	{"medium", "Medium (Multilingual)", "~1.5 GB", "High quality multilingual model."},
	{"large-v3", "Large v3", "~2.9 GB", "Latest large multilingual model."},
	{"large-v3-turbo", "Large v3 Turbo", "~1.6 GB", "Faster large-v3 variant."},
}

// modelFileName maps a catalog id to its on-disk file name.
func modelFileName(id string) string {
	return "ggml-" + id + ".bin"
}

// catalogByID looks up one preset.
func catalogByID(id string) (catalogEntry, bool) {
	for _, entry := range modelCatalog {
		if entry.id == id {
			return entry, true
		}
	}
	return catalogEntry{}, false
}

// Models returns the catalog with installed state resolved against the
// models directory.
func (e *Engine) Models() []domain.WhisperModelOption {
	out := make([]domain.WhisperModelOption, 0, len(modelCatalog))
	for _, entry := range modelCatalog {
		option := domain.WhisperModelOption{
			ID:          entry.id,
			Name:        entry.name,
			FileName:    modelFileName(entry.id),
			URL:         modelBaseURL + modelFileName(entry.id),
			SizeLabel:   entry.sizeLabel,
			Description: entry.description,
		}
		path := filepath.Join(e.modelsDir, option.FileName)
		if info, err := e.stat(path); err == nil && !info.IsDir() {
			option.Downloaded = true
			option.LocalPath = path
		}
		out = append(out, option)
	}
	return out
}

// InstalledModels returns catalog ids with a model file present in the
// models directory, in catalog order. A missing directory means no models.
func (e *Engine) InstalledModels() ([]string, error) {
	entries, err := e.readDir(e.modelsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read models directory: %w", err)
	}

	present := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			present[entry.Name()] = true
		}
	}

	var installed []string
	for _, entry := range modelCatalog {
		if present[modelFileName(entry.id)] {
			installed = append(installed, entry.id)
		}
	}
	return installed, nil
}

// installedModelPath resolves the model file for a catalog id, requiring it
// to be downloaded.
func (e *Engine) installedModelPath(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", fmt.Errorf("model id is required")
	}
	if _, ok := catalogByID(trimmed); !ok {
		return "", fmt.Errorf("unknown model id: %s", trimmed)
	}

	path := filepath.Join(e.modelsDir, modelFileName(trimmed))
	if _, err := e.stat(path); err != nil {
		return "", fmt.Errorf("model %s is not installed", trimmed)
	}
	return path, nil
}

// DownloadModel fetches one catalog model into the models directory and
// returns its local path.
func (e *Engine) DownloadModel(id string) (string, error) {
	entry, ok := catalogByID(strings.TrimSpace(id))
	if !ok {
		return "", fmt.Errorf("unknown model id: %s", id)
	}

	if err := os.MkdirAll(e.modelsDir, 0o755); err != nil {
		return "", fmt.Errorf("create models directory: %w", err)
	}

	target := filepath.Join(e.modelsDir, modelFileName(entry.id))
	if err := downloadURLToFile(target, modelBaseURL+modelFileName(entry.id), modelDownloadTimeout); err != nil {
		return "", fmt.Errorf("download model %s: %w", entry.name, err)
	}

	e.logger.WithField("model", entry.id).Info("model downloaded")
	return target, nil
}

// DeleteModel removes one downloaded model file. Deleting a model that is
// not installed is a no-op.
func (e *Engine) DeleteModel(id string) error {
	entry, ok := catalogByID(strings.TrimSpace(id))
	if !ok {
		return fmt.Errorf("unknown model id: %s", id)
	}

	path := filepath.Join(e.modelsDir, modelFileName(entry.id))
	if err := e.removeAll(path); err != nil {
		return fmt.Errorf("delete model %s: %w", entry.id, err)
	}
	return nil
}

// downloadURLToFile streams a URL into a file via a temporary sibling so a
// failed download never leaves a partial model behind.
func downloadURLToFile(destinationPath string, sourceURL string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(sourceURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmpPath := destinationPath + ".partial"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, destinationPath)
}
