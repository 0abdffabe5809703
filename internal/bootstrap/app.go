// Package bootstrap wires the backend services together and exposes them to
// the desktop UI through Wails bindings.
package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"clip-flow/internal/cloud"
	"clip-flow/internal/config"
	"clip-flow/internal/domain"
	"clip-flow/internal/keystore"
	"clip-flow/internal/media"
	"clip-flow/internal/queue"
	"clip-flow/internal/readiness"
	"clip-flow/internal/whisper"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Media files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.mp3;*.wav;*.m4a;*.flac;*.aac;*.ogg;*.webm",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, the job queue, readiness, and UI runtime callbacks.
type App struct {
	Store     config.Store
	Keys      *keystore.Keystore
	Engine    *whisper.Engine
	Installer *whisper.Installer
	Queue     *queue.Queue
	Resolver  *readiness.Resolver
	Watcher   *media.Watcher

	logger *logrus.Logger
	assets fs.FS

	openAIFor func(apiKey string) *cloud.OpenAI
	claudeFor func(apiKey string) *cloud.Claude
	ollama    ollamaClient

	mu         sync.Mutex
	settings   domain.Settings
	runtimeCtx context.Context
}

// ollamaClient is the local-LLM surface the app needs for readiness-style
// checks from the settings UI.
type ollamaClient interface {
	Available(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
}

// claudeValidationModel is the model used for key validation pings when the
// user has not selected a Claude summary model.
const claudeValidationModel = "claude-3-5-haiku-latest"

// New builds the application with persisted settings and default asset serving.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	appDir := filepath.Join(homeDir, ".clip-flow")
	store := config.NewJSONStore(filepath.Join(appDir, "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	keys := keystore.New()
	engine := whisper.NewEngine(filepath.Join(appDir, "models"), logger.WithField("component", "whisper"))

	executor := NewExecutor(engine, keys, logger.WithField("component", "executor"))
	jobQueue := queue.New(executor, queue.Config{
		TranscriptionConcurrency: settings.TranscriptionConcurrency,
		SummarizationConcurrency: settings.SummarizationConcurrency,
	}, logger.WithField("component", "queue"))

	resolver := readiness.NewResolver(
		engineProbes{engine: engine, keys: keys},
		logger.WithField("component", "readiness"),
	)

	app := &App{
		Store:     store,
		Keys:      keys,
		Engine:    engine,
		Installer: whisper.NewInstaller(logger.WithField("component", "installer")),
		Queue:     jobQueue,
		Resolver:  resolver,
		logger:    logger,
		assets:    assets,
		settings:  settings,
		openAIFor: cloud.NewOpenAI,
		claudeFor: cloud.NewClaude,
		ollama:    cloud.NewOllama(),
	}
	app.Watcher = media.NewWatcher(app.pushFileEvent, logger.WithField("component", "media"))
	jobQueue.SetOnChange(app.pushSnapshot)
	return app, nil
}

// engineProbes backs the readiness probes with the local engine and the
// OS keychain.
type engineProbes struct {
	engine *whisper.Engine
	keys   *keystore.Keystore
}

func (p engineProbes) CheckEngineAvailable(context.Context) (bool, error) {
	return p.engine.Available(), nil
}

func (p engineProbes) ListInstalledModels(context.Context) ([]string, error) {
	return p.engine.InstalledModels()
}

func (p engineProbes) APIKeyStatus(context.Context) (domain.APIKeyStatus, error) {
	return p.keys.Status()
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Clip Flow",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores the Wails runtime context, starts the queue workers, and
// kicks off the initial readiness check.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	settings := a.settings
	a.mu.Unlock()

	if err := a.Queue.Start(context.Background()); err != nil {
		a.logger.WithError(err).Warn("start queue")
	}

	go func() {
		report := a.Resolver.Recheck(context.Background(), settings)
		a.push("readiness:report", report)
	}()
}

// Shutdown stops queue workers and the directory watcher, and drops the
// runtime context.
func (a *App) Shutdown(context.Context) {
	a.Queue.Stop()
	if err := a.Watcher.Stop(); err != nil {
		a.logger.WithError(err).Warn("stop directory watcher")
	}

	a.mu.Lock()
	a.runtimeCtx = nil
	a.mu.Unlock()
}

// GetSnapshot returns the current aggregate queue state.
func (a *App) GetSnapshot() domain.QueueSnapshot {
	return a.Queue.Snapshot()
}

// EnqueueTranscription admits a transcription job for the media file using
// the current settings and the readiness fallback verdict.
func (a *App) EnqueueTranscription(mediaPath string) string {
	settings := a.currentSettings()
	a.Queue.EnqueueTranscription(domain.TranscriptionRequest{
		MediaPath: strings.TrimSpace(mediaPath),
		Provider:  a.transcriptionProvider(settings),
		ModelID:   settings.ModelID,
		Language:  settings.Language,
	})
	return queue.JobID(domain.LaneTranscription, strings.TrimSpace(mediaPath))
}

// EnqueueSummarization admits a summarization job for an existing transcript.
func (a *App) EnqueueSummarization(mediaPath, transcript string) string {
	settings := a.currentSettings()
	a.Queue.EnqueueSummarization(domain.SummarizationRequest{
		MediaPath:  strings.TrimSpace(mediaPath),
		Transcript: transcript,
		Provider:   settings.SummaryProvider,
		Model:      settings.SummaryModel,
		Language:   settings.Language,
	})
	return queue.JobID(domain.LaneSummarization, strings.TrimSpace(mediaPath))
}

// HasTranscriptionJob reports whether any transcription job exists for the file.
func (a *App) HasTranscriptionJob(mediaPath string) bool {
	return a.Queue.HasTranscription(strings.TrimSpace(mediaPath))
}

// HasSummarizationJob reports whether any summarization job exists for the file.
func (a *App) HasSummarizationJob(mediaPath string) bool {
	return a.Queue.HasSummarization(strings.TrimSpace(mediaPath))
}

// GetJobs lists the jobs of one lane for UI display.
func (a *App) GetJobs(lane string) []domain.Job {
	return a.Queue.Jobs(domain.Lane(lane))
}

// ClearCompleted removes completed jobs from both lanes; errored jobs stay
// visible until resubmitted.
func (a *App) ClearCompleted() {
	a.Queue.ClearCompleted()
}

// QueueEvents returns queue events with sequence greater than sinceSeq.
func (a *App) QueueEvents(sinceSeq int64) []queue.Event {
	return a.Queue.Events(sinceSeq)
}

// GetReadiness returns the cached readiness report.
func (a *App) GetReadiness() domain.ReadinessReport {
	return a.Resolver.Report()
}

// RecheckReadiness reruns the probes against current settings and returns
// the fresh report.
func (a *App) RecheckReadiness() domain.ReadinessReport {
	report := a.Resolver.Recheck(context.Background(), a.currentSettings())
	a.push("readiness:report", report)
	return report
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes readiness.
// Lane concurrency changes take effect on the next launch.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.settings = normalized
	a.mu.Unlock()

	report := a.Resolver.Recheck(context.Background(), normalized)
	a.push("readiness:report", report)

	return normalized, nil
}

// GetWhisperModels returns the model catalog with install markers.
func (a *App) GetWhisperModels() []domain.WhisperModelOption {
	return a.Engine.Models()
}

// DownloadWhisperModel fetches a catalog model and refreshes readiness.
func (a *App) DownloadWhisperModel(id string) (string, error) {
	path, err := a.Engine.DownloadModel(id)
	if err != nil {
		return "", err
	}
	a.RecheckReadiness()
	return path, nil
}

// DeleteWhisperModel removes an installed model and refreshes readiness.
func (a *App) DeleteWhisperModel(id string) error {
	if err := a.Engine.DeleteModel(id); err != nil {
		return err
	}
	a.RecheckReadiness()
	return nil
}

// InstallFFmpeg installs ffmpeg through the host package manager and
// refreshes readiness.
func (a *App) InstallFFmpeg() error {
	if err := a.Installer.InstallFFmpeg(context.Background()); err != nil {
		return err
	}
	a.RecheckReadiness()
	return nil
}

// InstallWhisper installs a whisper.cpp binary and refreshes readiness.
func (a *App) InstallWhisper() error {
	if err := a.Installer.InstallWhisper(context.Background()); err != nil {
		return err
	}
	a.RecheckReadiness()
	return nil
}

// StoreAPIKey saves a provider key in the OS keychain and refreshes readiness.
func (a *App) StoreAPIKey(provider string, apiKey string) error {
	if err := a.Keys.Set(domain.Provider(provider), apiKey); err != nil {
		return err
	}
	a.RecheckReadiness()
	return nil
}

// DeleteAPIKey removes a provider key from the OS keychain.
func (a *App) DeleteAPIKey(provider string) error {
	if err := a.Keys.Delete(domain.Provider(provider)); err != nil {
		return err
	}
	a.RecheckReadiness()
	return nil
}

// GetAPIKeyStatus reports which provider keys are configured.
func (a *App) GetAPIKeyStatus() (domain.APIKeyStatus, error) {
	return a.Keys.Status()
}

// GetAPIKeyMasked returns a display-safe form of a stored key.
func (a *App) GetAPIKeyMasked(provider string) (string, error) {
	return a.Keys.Masked(domain.Provider(provider))
}

// ValidateAPIKey checks the stored key for a provider against its API.
// False without error means the key is stored but rejected; a missing key
// also reports false.
func (a *App) ValidateAPIKey(provider string) (bool, error) {
	p := domain.Provider(provider)
	apiKey, err := a.Keys.Get(p)
	if err != nil {
		return false, err
	}
	if apiKey == "" {
		return false, nil
	}

	ctx := context.Background()
	switch p {
	case domain.ProviderOpenAI:
		return a.openAIFor(apiKey).ValidateKey(ctx)
	default:
		model := claudeValidationModel
		if settings := a.currentSettings(); settings.SummaryProvider == domain.ProviderClaude && settings.SummaryModel != "" {
			model = settings.SummaryModel
		}
		return a.claudeFor(apiKey).ValidateKey(ctx, model)
	}
}

// CheckOllama reports whether a local Ollama server is responding.
func (a *App) CheckOllama() bool {
	return a.ollama.Available(context.Background())
}

// ListOllamaModels returns the names of locally pulled Ollama models.
func (a *App) ListOllamaModels() ([]string, error) {
	return a.ollama.ListModels(context.Background())
}

// ScanMediaDirectory lists the media files under a directory as a flat,
// path-sorted list.
func (a *App) ScanMediaDirectory(path string) ([]media.FileEntry, error) {
	return media.ScanDirectory(strings.TrimSpace(path))
}

// ScanMediaDirectoryTree returns the directory as a tree with non-media
// files and empty directories pruned.
func (a *App) ScanMediaDirectoryTree(path string) (*media.DirectoryNode, error) {
	return media.ScanDirectoryTree(strings.TrimSpace(path))
}

// StartWatchingDirectory watches a directory tree for media file changes,
// replacing any previous watch. Changes arrive as file:change events.
func (a *App) StartWatchingDirectory(path string) error {
	return a.Watcher.Start(strings.TrimSpace(path))
}

// StopWatchingDirectory ends the current directory watch.
func (a *App) StopWatchingDirectory() error {
	return a.Watcher.Stop()
}

// GetWatchedDirectory returns the watched directory, or "" when none.
func (a *App) GetWatchedDirectory() string {
	return a.Watcher.WatchedPath()
}

// IsMediaFile reports whether the path has a supported media extension.
func (a *App) IsMediaFile(path string) bool {
	return media.IsSupported(strings.TrimSpace(path))
}

// SaveTranscript writes the completed transcription text for the media file
// into the configured output directory and returns the written path.
func (a *App) SaveTranscript(mediaPath string) (string, error) {
	job, ok := a.Queue.Job(domain.LaneTranscription, strings.TrimSpace(mediaPath))
	if !ok {
		return "", fmt.Errorf("no transcription job for %s", mediaPath)
	}
	if job.State != domain.JobStateCompleted || job.Result == nil || job.Result.Transcript == nil {
		return "", fmt.Errorf("transcription for %s has not completed", mediaPath)
	}

	settings := a.currentSettings()
	if err := os.MkdirAll(settings.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	outPath := filepath.Join(settings.OutputDir, base+".txt")
	if err := os.WriteFile(outPath, []byte(job.Result.Transcript.FullText+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return outPath, nil
}

// PickInputFile opens a native file dialog for media selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select media file",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickOutputDirectory opens a native directory picker for transcript exports.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in the
// platform file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.currentSettings().OutputDir
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// transcriptionProvider applies the readiness fallback to the selected
// provider using the cached report.
func (a *App) transcriptionProvider(settings domain.Settings) domain.Provider {
	return resolveTranscriptionProvider(settings.Provider, a.Resolver.Report())
}

// resolveTranscriptionProvider routes jobs to the other backend when the
// selection cannot run but the other one can.
func resolveTranscriptionProvider(selected domain.Provider, report domain.ReadinessReport) domain.Provider {
	localReady := report.WhisperAvailable && report.HasInstalledModels

	switch selected {
	case domain.ProviderOpenAI:
		if !report.HasOpenAIKey && localReady {
			return domain.ProviderLocal
		}
		return domain.ProviderOpenAI
	default:
		if !localReady && report.HasOpenAIKey {
			return domain.ProviderOpenAI
		}
		return domain.ProviderLocal
	}
}

// currentSettings returns the in-memory settings copy.
func (a *App) currentSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// pushFileEvent forwards watched-directory changes to the UI.
func (a *App) pushFileEvent(event media.FileEvent) {
	a.push("file:change", event)
}

// pushSnapshot forwards queue state changes to the UI.
func (a *App) pushSnapshot(snap domain.QueueSnapshot) {
	a.push("queue:event", snap)
}

// push emits a runtime event when the UI is attached.
func (a *App) push(name string, payload any) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, name, payload)
	}
}

// runtimeContext returns the current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// ensureLocalBinOnPATH prepends ~/.local/bin so user-installed ffmpeg and
// whisper binaries resolve from the desktop launch environment.
func ensureLocalBinOnPATH(homeDir string) error {
	localBin := filepath.Join(homeDir, ".local", "bin")
	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if entry == localBin {
			return nil
		}
	}
	return os.Setenv("PATH", localBin+string(os.PathListSeparator)+current)
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
