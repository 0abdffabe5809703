package whisper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// installCommandTimeout bounds one package-manager invocation.
const installCommandTimeout = 15 * time.Minute

// installOption is one package-manager route for putting a tool on PATH.
type installOption struct {
	manager  string
	commands [][]string
}

// Installer puts ffmpeg and a whisper.cpp binary on PATH using whichever
// package manager the host has. The first manager that is present and
// succeeds wins.
type Installer struct {
	logger   logrus.FieldLogger
	runner   commandRunner
	lookPath func(string) (string, error)
	homeDir  func() (string, error)
	goos     string
}

// NewInstaller builds an installer backed by os/exec.
func NewInstaller(logger logrus.FieldLogger) *Installer {
	return &Installer{
		logger:   logger,
		runner:   &execRunner{},
		lookPath: exec.LookPath,
		homeDir:  os.UserHomeDir,
		goos:     goruntime.GOOS,
	}
}

// NewInstallerForTests builds an installer with injectable process and
// filesystem dependencies.
func NewInstallerForTests(
	logger logrus.FieldLogger,
	runner commandRunner,
	lookPath func(string) (string, error),
	homeDir func() (string, error),
	goos string,
) *Installer {
	return &Installer{
		logger:   logger,
		runner:   runner,
		lookPath: lookPath,
		homeDir:  homeDir,
		goos:     goos,
	}
}

// InstallFFmpeg installs ffmpeg and ffprobe. Already-installed tools make
// this a no-op.
func (i *Installer) InstallFFmpeg(ctx context.Context) error {
	if err := i.requireOnPath("ffmpeg", "ffprobe"); err == nil {
		return nil
	}

	var options []installOption
	switch i.goos {
	case "windows":
		options = []installOption{
			{manager: "winget", commands: [][]string{
				{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
			}},
			{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		options = []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		options = []installOption{
			{manager: "apt-get", commands: [][]string{
				{"apt-get", "update"},
				{"apt-get", "install", "-y", "ffmpeg"},
			}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}

	if err := i.runFirstSuccessful(ctx, options); err != nil {
		return fmt.Errorf("install ffmpeg/ffprobe: %w", err)
	}
	if err := i.requireOnPath("ffmpeg", "ffprobe"); err != nil {
		return fmt.Errorf("verify ffmpeg/ffprobe on PATH: %w", err)
	}
	i.logger.Info("ffmpeg installed")
	return nil
}

// InstallWhisper installs a whisper.cpp binary. An existing compatible
// binary under another name gets an alias instead of a reinstall.
func (i *Installer) InstallWhisper(ctx context.Context) error {
	if i.whisperOnPath() {
		return nil
	}
	if err := i.createWhisperAlias(); err == nil && i.whisperOnPath() {
		return nil
	}

	var options []installOption
	switch i.goos {
	case "windows":
		options = []installOption{
			{manager: "winget", commands: [][]string{
				{"winget", "install", "--id", "ggerganov.whisper.cpp", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
			}},
			{manager: "choco", commands: [][]string{{"choco", "install", "whispercpp", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "whisper-cpp"}}},
		}
	case "darwin":
		options = []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "whisper-cpp"}}},
		}
	default:
		options = []installOption{
			{manager: "apt-get", commands: [][]string{
				{"apt-get", "update"},
				{"apt-get", "install", "-y", "whisper-cpp"},
			}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "whisper-cpp"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "whisper.cpp"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "whisper-cpp"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "whisper-cpp"}}},
		}
	}

	installErr := i.runFirstSuccessful(ctx, options)
	if installErr == nil && i.whisperOnPath() {
		i.logger.Info("whisper.cpp installed")
		return nil
	}

	// Some packages install the binary under a name the engine does not
	// probe; an alias bridges the gap.
	if err := i.createWhisperAlias(); err != nil {
		if installErr != nil {
			return fmt.Errorf("install whisper.cpp failed: %v | create alias: %w", installErr, err)
		}
		return fmt.Errorf("create whisper.cpp alias: %w", err)
	}
	if !i.whisperOnPath() {
		if installErr != nil {
			return fmt.Errorf("install whisper.cpp failed: %v | binary still missing from PATH", installErr)
		}
		return errors.New("whisper.cpp binary still missing from PATH after install")
	}
	i.logger.Info("whisper.cpp installed")
	return nil
}

// runFirstSuccessful tries each option whose manager exists until one
// command sequence succeeds.
func (i *Installer) runFirstSuccessful(ctx context.Context, options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", i.goos)
	}

	var failures []string
	foundManager := false
	for _, option := range options {
		if !i.commandAvailable(option.manager) {
			continue
		}
		foundManager = true
		if err := i.runCommands(ctx, option.commands); err == nil {
			return nil
		} else {
			failures = append(failures, fmt.Sprintf("%s: %v", option.manager, err))
		}
	}

	if !foundManager {
		return fmt.Errorf("no supported package manager found for %s", i.goos)
	}
	return errors.New(strings.Join(failures, " | "))
}

func (i *Installer) runCommands(ctx context.Context, commands [][]string) error {
	for _, command := range commands {
		if err := i.runPossiblyElevated(ctx, command); err != nil {
			return err
		}
	}
	return nil
}

// runPossiblyElevated retries system package managers through pkexec or
// passwordless sudo when the plain invocation fails.
func (i *Installer) runPossiblyElevated(ctx context.Context, command []string) error {
	if len(command) == 0 {
		return errors.New("empty command")
	}

	candidates := [][]string{command}
	if i.goos == "linux" && requiresElevation(command[0]) {
		if i.commandAvailable("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if i.commandAvailable("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	var failures []string
	for _, candidate := range candidates {
		if err := i.runCommand(ctx, candidate[0], candidate[1:]...); err == nil {
			return nil
		} else {
			failures = append(failures, err.Error())
		}
	}
	return errors.New(strings.Join(failures, " | "))
}

func (i *Installer) runCommand(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, installCommandTimeout)
	defer cancel()

	result, err := i.runner.Run(ctx, name, args...)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", strings.Join(append([]string{name}, args...), " "), installCommandTimeout)
	}

	detail := strings.TrimSpace(result.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(result.Stdout)
	}
	if len(detail) > 500 {
		detail = detail[:500] + "..."
	}
	if detail == "" {
		return fmt.Errorf("%s failed: %w", strings.Join(append([]string{name}, args...), " "), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", strings.Join(append([]string{name}, args...), " "), err, detail)
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

func (i *Installer) commandAvailable(name string) bool {
	_, err := i.lookPath(name)
	return err == nil
}

func (i *Installer) requireOnPath(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, err := i.lookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (i *Installer) whisperOnPath() bool {
	for _, name := range whisperBinaries {
		if _, err := i.lookPath(name); err == nil {
			return true
		}
	}
	return false
}

// createWhisperAlias links an installed binary with an unprobed name to the
// whisper-cli name under ~/.local/bin.
func (i *Installer) createWhisperAlias() error {
	candidates := []string{"whisper", "whisper-cpp", "main"}
	var sourcePath string
	for _, candidate := range candidates {
		if path, err := i.lookPath(candidate); err == nil {
			sourcePath = path
			break
		}
	}
	if sourcePath == "" {
		return fmt.Errorf("no compatible whisper executable found (tried: %s)", strings.Join(candidates, ", "))
	}

	homeDir, err := i.homeDir()
	if err != nil {
		return fmt.Errorf("resolve user home: %w", err)
	}
	binDir := filepath.Join(homeDir, ".local", "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("create local bin directory: %w", err)
	}

	if i.goos == "windows" {
		aliasPath := filepath.Join(binDir, "whisper-cli.cmd")
		content := fmt.Sprintf("@echo off\r\n\"%s\" %%*\r\n", sourcePath)
		if err := os.WriteFile(aliasPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write whisper alias file: %w", err)
		}
		return nil
	}

	aliasPath := filepath.Join(binDir, "whisper-cli")
	escaped := strings.ReplaceAll(sourcePath, `"`, `\"`)
	content := fmt.Sprintf("#!/usr/bin/env sh\nexec \"%s\" \"$@\"\n", escaped)
	if err := os.WriteFile(aliasPath, []byte(content), 0o755); err != nil {
		return fmt.Errorf("write whisper alias script: %w", err)
	}
	return nil
}
