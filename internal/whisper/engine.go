package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clip-flow/internal/domain"
)

// whisperBinaries are the executable names probed on PATH, in order.
var whisperBinaries = []string{"whisper-cli", "whisper.cpp"}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// EngineError is a stage-aware transcription failure with optional command
// context.
type EngineError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats engine failures for logs and UI.
func (e *EngineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *EngineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Engine runs local transcription: ffmpeg audio extraction followed by
// whisper.cpp with JSON output.
type Engine struct {
	ffmpegPath string
	modelsDir  string
	logger     logrus.FieldLogger
	runner     commandRunner
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirTemp  func(dir, pattern string) (string, error)
	removeAll  func(string) error
	readDir    func(string) ([]os.DirEntry, error)
	readFile   func(string) ([]byte, error)
}

// NewEngine constructs the production engine over a models directory.
func NewEngine(modelsDir string, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		base := logrus.New()
		logger = base.WithField("component", "whisper")
	}
	return &Engine{
		ffmpegPath: "ffmpeg",
		modelsDir:  modelsDir,
		logger:     logger,
		runner:     &execRunner{},
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirTemp:  os.MkdirTemp,
		removeAll:  os.RemoveAll,
		readDir:    os.ReadDir,
		readFile:   os.ReadFile,
	}
}

// NewEngineForTests constructs an engine with injectable dependencies.
func NewEngineForTests(
	modelsDir string,
	runner commandRunner,
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(string) error,
	readDir func(string) ([]os.DirEntry, error),
	readFile func(string) ([]byte, error),
) *Engine {
	e := NewEngine(modelsDir, nil)
	e.runner = runner
	e.lookPath = lookPath
	e.stat = stat
	e.mkdirTemp = mkdirTemp
	e.removeAll = removeAll
	e.readDir = readDir
	e.readFile = readFile
	return e
}

// binaryPath resolves the whisper executable on PATH.
func (e *Engine) binaryPath() (string, error) {
	for _, name := range whisperBinaries {
		if path, err := e.lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("whisper binary not found in PATH (tried %s)", strings.Join(whisperBinaries, ", "))
}

// Available reports whether the whisper executable is present.
func (e *Engine) Available() bool {
	_, err := e.binaryPath()
	return err == nil
}

// Transcribe converts the media file to mono 16 kHz audio and runs whisper
// with JSON output, returning timed segments.
func (e *Engine) Transcribe(ctx context.Context, req domain.TranscriptionRequest) (*domain.TranscriptionResult, error) {
	if strings.TrimSpace(req.MediaPath) == "" {
		return nil, &EngineError{Stage: "extracting", Message: "input media path is required"}
	}
	if _, err := e.stat(req.MediaPath); err != nil {
		return nil, &EngineError{
			Stage:   "extracting",
			Message: fmt.Sprintf("cannot access input media: %s", req.MediaPath),
			Err:     err,
		}
	}

	whisperPath, err := e.binaryPath()
	if err != nil {
		return nil, &EngineError{Stage: "transcribing", Message: err.Error(), Err: err}
	}

	modelPath, err := e.installedModelPath(req.ModelID)
	if err != nil {
		return nil, &EngineError{Stage: "transcribing", Message: err.Error(), Err: err}
	}

	tempDir, err := e.mkdirTemp("", "clip-flow-*")
	if err != nil {
		return nil, &EngineError{Stage: "extracting", Message: "failed to create temporary workspace", Err: err}
	}
	defer func() {
		if cleanupErr := e.removeAll(tempDir); cleanupErr != nil {
			e.logger.WithError(cleanupErr).Warn("cleanup temporary workspace failed")
		}
	}()

	audioPath := filepath.Join(tempDir, uuid.NewString()+".wav")
	args := buildFFmpegArgs(req.MediaPath, audioPath)
	cmdResult, runErr := e.runner.Run(ctx, e.ffmpegPath, args...)
	log := CommandLog{
		Command:  e.ffmpegPath,
		Args:     args,
		ExitCode: cmdResult.ExitCode,
		Stdout:   cmdResult.Stdout,
		Stderr:   cmdResult.Stderr,
	}
	if runErr != nil {
		return nil, &EngineError{
			Stage:      "extracting",
			Message:    "ffmpeg audio extraction failed",
			CommandLog: log,
			Err:        runErr,
		}
	}
	if _, err := e.stat(audioPath); err != nil {
		return nil, &EngineError{
			Stage:      "extracting",
			Message:    "ffmpeg completed but audio file is missing",
			CommandLog: log,
			Err:        err,
		}
	}

	outputBase := strings.TrimSuffix(audioPath, ".wav")
	whisperArgs := buildWhisperArgs(modelPath, audioPath, outputBase, req.Language)
	whisperResult, runErr := e.runner.Run(ctx, whisperPath, whisperArgs...)
	whisperLog := CommandLog{
		Command:  whisperPath,
		Args:     whisperArgs,
		ExitCode: whisperResult.ExitCode,
		Stdout:   whisperResult.Stdout,
		Stderr:   whisperResult.Stderr,
	}
	if runErr != nil {
		return nil, &EngineError{
			Stage:      "transcribing",
			Message:    "whisper transcription failed",
			CommandLog: whisperLog,
			Err:        runErr,
		}
	}

	jsonPath := outputBase + ".json"
	content, err := e.readFile(jsonPath)
	if err != nil {
		return nil, &EngineError{
			Stage:      "transcribing",
			Message:    "whisper completed but JSON output is missing",
			CommandLog: whisperLog,
			Err:        err,
		}
	}

	result, err := parseWhisperOutput(content)
	if err != nil {
		return nil, &EngineError{
			Stage:      "transcribing",
			Message:    "cannot parse whisper JSON output",
			CommandLog: whisperLog,
			Err:        err,
		}
	}
	return result, nil
}

// whisperOutput mirrors the whisper.cpp -oj JSON document.
type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Timestamps struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"timestamps"`
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// parseWhisperOutput maps whisper JSON output to the domain result. Segment
// bounds prefer formatted timestamps and fall back to millisecond offsets.
func parseWhisperOutput(content []byte) (*domain.TranscriptionResult, error) {
	var doc whisperOutput
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, err
	}

	result := &domain.TranscriptionResult{
		Language: doc.Result.Language,
		Segments: make([]domain.TranscriptionSegment, 0, len(doc.Transcription)),
	}

	var text strings.Builder
	for _, seg := range doc.Transcription {
		start, ok := parseTimestamp(seg.Timestamps.From)
		if !ok {
			start = float64(seg.Offsets.From) / 1000
		}
		end, ok := parseTimestamp(seg.Timestamps.To)
		if !ok {
			end = float64(seg.Offsets.To) / 1000
		}

		trimmed := strings.TrimSpace(seg.Text)
		if trimmed == "" {
			continue
		}

		result.Segments = append(result.Segments, domain.TranscriptionSegment{
			Start: start,
			End:   end,
			Text:  trimmed,
		})
		if text.Len() > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(trimmed)
		if end > result.Duration {
			result.Duration = end
		}
	}

	result.FullText = text.String()
	return result, nil
}

// parseTimestamp converts "HH:MM:SS,mmm" to seconds.
func parseTimestamp(raw string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return 0, false
	}

	secParts := strings.Split(parts[2], ",")
	if len(secParts) != 2 {
		return 0, false
	}

	hours, err1 := strconv.Atoi(parts[0])
	minutes, err2 := strconv.Atoi(parts[1])
	seconds, err3 := strconv.Atoi(secParts[0])
	millis, err4 := strconv.Atoi(secParts[1])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return 0, false
	}

	return float64(hours)*3600 + float64(minutes)*60 + float64(seconds) + float64(millis)/1000, true
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// buildFFmpegArgs builds extraction CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// buildWhisperArgs builds whisper.cpp args for JSON transcript export.
func buildWhisperArgs(modelPath, audioPath, outputBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outputBase,
		"-oj",
	}

	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}

	return args
}
