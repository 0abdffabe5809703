package whisper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clip-flow/internal/domain"
)

// fakeRunner simulates command execution order and outcomes.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (commandResult, error)
}

// Run delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func argValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func hasArg(args []string, flag string) bool {
	for _, arg := range args {
		if arg == flag {
			return true
		}
	}
	return false
}

const sampleWhisperJSON = `{
  "result": {"language": "en"},
  "transcription": [
    {
      "timestamps": {"from": "00:00:00,000", "to": "00:00:02,500"},
      "offsets": {"from": 0, "to": 2500},
      "text": " Hello there."
    },
    {
      "timestamps": {"from": "bad", "to": "worse"},
      "offsets": {"from": 2500, "to": 5250},
      "text": " General Kenobi."
    }
  ]
}`

// testEngine builds an engine over a temp models dir with an installed base
// model and a scripted runner.
func testEngine(t *testing.T, runner commandRunner) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	modelsDir := filepath.Join(root, "models")
	mustWriteFile(t, filepath.Join(modelsDir, "ggml-base.bin"), "model")

	engine := NewEngineForTests(
		modelsDir,
		runner,
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.Stat,
		os.MkdirTemp,
		os.RemoveAll,
		os.ReadDir,
		os.ReadFile,
	)
	return engine, root
}

// TestTranscribeSuccess checks the full happy path with segment parsing.
func TestTranscribeSuccess(t *testing.T) {
	var whisperArgs []string
	call := 0
	runner := &fakeRunner{
		run: func(_ context.Context, name string, args ...string) (commandResult, error) {
			call++
			switch call {
			case 1:
				if name != "ffmpeg" {
					t.Fatalf("command 1 name = %q, want ffmpeg", name)
				}
				mustWriteFile(t, args[len(args)-1], "wav")
				return commandResult{Stdout: "ffmpeg ok"}, nil
			case 2:
				whisperArgs = append([]string{}, args...)
				mustWriteFile(t, argValue(args, "-of")+".json", sampleWhisperJSON)
				return commandResult{Stdout: "whisper ok"}, nil
			default:
				t.Fatalf("unexpected command call: %d", call)
				return commandResult{}, nil
			}
		},
	}

	engine, root := testEngine(t, runner)
	inputPath := filepath.Join(root, "meeting.mp4")
	mustWriteFile(t, inputPath, "media")

	result, err := engine.Transcribe(context.Background(), domain.TranscriptionRequest{
		MediaPath: inputPath,
		ModelID:   "base",
		Language:  "auto",
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if len(result.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(result.Segments))
	}
	if result.Segments[0].Start != 0 || result.Segments[0].End != 2.5 {
		t.Fatalf("segment 0 bounds = %v-%v", result.Segments[0].Start, result.Segments[0].End)
	}
	// Second segment has unparseable timestamps; offsets take over.
	if result.Segments[1].Start != 2.5 || result.Segments[1].End != 5.25 {
		t.Fatalf("segment 1 bounds = %v-%v", result.Segments[1].Start, result.Segments[1].End)
	}
	if result.FullText != "Hello there. General Kenobi." {
		t.Fatalf("full text = %q", result.FullText)
	}
	if result.Language != "en" {
		t.Fatalf("language = %q, want en", result.Language)
	}
	if result.Duration != 5.25 {
		t.Fatalf("duration = %v, want 5.25", result.Duration)
	}
	if !hasArg(whisperArgs, "-oj") {
		t.Fatalf("whisper args missing -oj: %v", whisperArgs)
	}
	if hasArg(whisperArgs, "-l") {
		t.Fatalf("auto language should not pass -l, args=%v", whisperArgs)
	}
}

// TestTranscribeExplicitLanguage checks language flag forwarding.
func TestTranscribeExplicitLanguage(t *testing.T) {
	var whisperArgs []string
	runner := &fakeRunner{
		run: func(_ context.Context, name string, args ...string) (commandResult, error) {
			if name == "ffmpeg" {
				mustWriteFile(t, args[len(args)-1], "wav")
				return commandResult{}, nil
			}
			whisperArgs = append([]string{}, args...)
			mustWriteFile(t, argValue(args, "-of")+".json", sampleWhisperJSON)
			return commandResult{}, nil
		},
	}

	engine, root := testEngine(t, runner)
	inputPath := filepath.Join(root, "clip.mp4")
	mustWriteFile(t, inputPath, "media")

	if _, err := engine.Transcribe(context.Background(), domain.TranscriptionRequest{
		MediaPath: inputPath,
		ModelID:   "base",
		Language:  "de",
	}); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if argValue(whisperArgs, "-l") != "de" {
		t.Fatalf("whisper args = %v, want -l de", whisperArgs)
	}
}

// TestTranscribeFFmpegFailure checks the extraction error path.
func TestTranscribeFFmpegFailure(t *testing.T) {
	runner := &fakeRunner{
		run: func(context.Context, string, ...string) (commandResult, error) {
			return commandResult{Stderr: "boom", ExitCode: 1}, errors.New("exit status 1")
		},
	}

	engine, root := testEngine(t, runner)
	inputPath := filepath.Join(root, "clip.mp4")
	mustWriteFile(t, inputPath, "media")

	_, err := engine.Transcribe(context.Background(), domain.TranscriptionRequest{
		MediaPath: inputPath,
		ModelID:   "base",
	})

	var engineErr *EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("error = %v, want *EngineError", err)
	}
	if engineErr.Stage != "extracting" {
		t.Fatalf("stage = %q, want extracting", engineErr.Stage)
	}
	if engineErr.CommandLog.ExitCode != 1 {
		t.Fatalf("exit code = %d, want 1", engineErr.CommandLog.ExitCode)
	}
}

// TestTranscribeModelNotInstalled checks the missing-model error path.
func TestTranscribeModelNotInstalled(t *testing.T) {
	engine, root := testEngine(t, &fakeRunner{})
	inputPath := filepath.Join(root, "clip.mp4")
	mustWriteFile(t, inputPath, "media")

	_, err := engine.Transcribe(context.Background(), domain.TranscriptionRequest{
		MediaPath: inputPath,
		ModelID:   "large-v3",
	})
	if err == nil || !strings.Contains(err.Error(), "not installed") {
		t.Fatalf("error = %v, want model-not-installed", err)
	}
}

// TestTranscribeMissingInput checks input validation.
func TestTranscribeMissingInput(t *testing.T) {
	engine, _ := testEngine(t, &fakeRunner{})

	if _, err := engine.Transcribe(context.Background(), domain.TranscriptionRequest{ModelID: "base"}); err == nil {
		t.Fatal("expected error for empty media path")
	}
	if _, err := engine.Transcribe(context.Background(), domain.TranscriptionRequest{
		MediaPath: "/does/not/exist.mp4",
		ModelID:   "base",
	}); err == nil {
		t.Fatal("expected error for missing media file")
	}
}

// TestAvailable checks binary lookup across candidate names.
func TestAvailable(t *testing.T) {
	engine := NewEngineForTests(
		t.TempDir(),
		&fakeRunner{},
		func(name string) (string, error) {
			if name == "whisper.cpp" {
				return "/opt/whisper.cpp", nil
			}
			return "", errors.New("not found")
		},
		os.Stat, os.MkdirTemp, os.RemoveAll, os.ReadDir, os.ReadFile,
	)
	if !engine.Available() {
		t.Fatal("expected available via fallback binary name")
	}

	missing := NewEngineForTests(
		t.TempDir(),
		&fakeRunner{},
		func(string) (string, error) { return "", errors.New("not found") },
		os.Stat, os.MkdirTemp, os.RemoveAll, os.ReadDir, os.ReadFile,
	)
	if missing.Available() {
		t.Fatal("expected unavailable when no binary resolves")
	}
}

// TestParseTimestamp checks formatted timestamp conversion.
func TestParseTimestamp(t *testing.T) {
	got, ok := parseTimestamp("01:02:03,450")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if got != 3723.45 {
		t.Fatalf("seconds = %v, want 3723.45", got)
	}

	if _, ok := parseTimestamp("12,000"); ok {
		t.Fatal("expected parse failure for malformed timestamp")
	}
}
