// Package lifecycle gets a local Ollama ready for chatlens: it detects the
// installation, starts the server and pulls the embedding model.
package lifecycle

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	// DefaultHost is the Ollama API endpoint used when none is configured.
	DefaultHost = "http://localhost:11434"

	// StartupTimeout is how long to wait for a started Ollama to answer.
	StartupTimeout = 30 * time.Second

	readyPollInterval    = 100 * time.Millisecond
	maxReadyPollInterval = 2 * time.Second
)

// Manager inspects and drives one Ollama host.
type Manager struct {
	host   string
	client *http.Client

	// Replaced in tests.
	execCommand func(name string, args ...string) *exec.Cmd
	lookPath    func(file string) (string, error)
	fileExists  func(path string) bool
}

// Status is a snapshot of the Ollama installation.
type Status struct {
	Installed     bool     `json:"installed"`
	InstalledPath string   `json:"installed_path,omitempty"`
	Running       bool     `json:"running"`
	Models        []string `json:"models,omitempty"`
	HasModel      bool     `json:"has_model"`
	TargetModel   string   `json:"target_model"`
}

// PullProgress is one update of a model download.
type PullProgress struct {
	Status    string
	Total     int64
	Completed int64
	Percent   float64
}

// EnsureOptions configures EnsureReady.
type EnsureOptions struct {
	// AutoStart starts an installed but stopped Ollama.
	AutoStart bool

	// ConfirmPull is asked before downloading a missing model. Nil means
	// yes.
	ConfirmPull func(model string) bool

	// Progress receives download updates. May be nil.
	Progress func(PullProgress)

	// Out receives status lines. Nil discards them.
	Out io.Writer
}

// NewManager creates a manager for host; an empty host means DefaultHost.
func NewManager(host string) *Manager {
	if host == "" {
		host = DefaultHost
	}
	return &Manager{
		host:        strings.TrimRight(host, "/"),
		client:      &http.Client{Timeout: 5 * time.Second},
		execCommand: exec.Command,
		lookPath:    exec.LookPath,
		fileExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

// Host returns the Ollama endpoint.
func (m *Manager) Host() string {
	return m.host
}

// IsRemoteHost reports whether the host is another machine, which chatlens
// can neither start nor inspect for an installation.
func (m *Manager) IsRemoteHost() bool {
	u, err := url.Parse(m.host)
	if err != nil {
		return true
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return false
	}
	return true
}

// IsInstalled looks for the ollama binary in PATH and in the usual
// install locations of the current platform.
func (m *Manager) IsInstalled() (bool, string) {
	if path, err := m.lookPath("ollama"); err == nil {
		return true, path
	}

	home := os.Getenv("HOME")
	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/Applications/Ollama.app",
			filepath.Join(home, "Applications", "Ollama.app"),
		}
	case "linux":
		candidates = []string{
			"/usr/local/bin/ollama",
			"/usr/bin/ollama",
			filepath.Join(home, ".local", "bin", "ollama"),
		}
	}
	for _, p := range candidates {
		if m.fileExists(p) {
			return true, p
		}
	}
	return false, ""
}

// IsRunning reports whether the API answers.
func (m *Manager) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the names of the locally available models.
func (m *Manager) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	models := make([]string, len(result.Models))
	for i, model := range result.Models {
		models[i] = model.Name
	}
	return models, nil
}

// HasModel reports whether model is available. A model without a tag
// matches any tag of the same name, so "nomic-embed-text" finds
// "nomic-embed-text:latest".
func (m *Manager) HasModel(ctx context.Context, model string) (bool, error) {
	models, err := m.ListModels(ctx)
	if err != nil {
		return false, err
	}
	return containsModel(models, model), nil
}

func containsModel(models []string, model string) bool {
	want := strings.ToLower(model)
	wantBase, _, tagged := strings.Cut(want, ":")
	for _, available := range models {
		have := strings.ToLower(available)
		if have == want {
			return true
		}
		if base, _, _ := strings.Cut(have, ":"); !tagged && base == wantBase {
			return true
		}
	}
	return false
}

// Status collects installation, server and model state.
func (m *Manager) Status(ctx context.Context, model string) (*Status, error) {
	status := &Status{TargetModel: model}
	status.Installed, status.InstalledPath = m.IsInstalled()
	status.Running = m.IsRunning(ctx)
	if !status.Running {
		return status, nil
	}

	models, err := m.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	status.Models = models
	status.HasModel = containsModel(models, model)
	return status, nil
}

// Start launches Ollama in the background. It returns once the process is
// started; use WaitForReady to wait for the API.
func (m *Manager) Start() error {
	installed, path := m.IsInstalled()
	if !installed {
		return &NotInstalledError{}
	}

	switch runtime.GOOS {
	case "darwin":
		if strings.HasSuffix(path, ".app") || m.fileExists("/Applications/Ollama.app") {
			if err := m.execCommand("open", "-a", "Ollama").Start(); err != nil {
				return fmt.Errorf("failed to open Ollama.app: %w", err)
			}
			return nil
		}
	case "linux":
		if m.execCommand("systemctl", "start", "ollama").Run() == nil {
			return nil
		}
		if m.execCommand("systemctl", "--user", "start", "ollama").Run() == nil {
			return nil
		}
	}
	return m.serve(path)
}

// serve runs `ollama serve` detached from chatlens.
func (m *Manager) serve(path string) error {
	cmd := m.execCommand(path, "serve")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ollama serve: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// WaitForReady polls with exponential backoff until the API answers.
func (m *Manager) WaitForReady(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = StartupTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := readyPollInterval
	for {
		if m.IsRunning(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for Ollama at %s: %w", m.host, ctx.Err())
		case <-time.After(interval):
		}
		interval = min(interval*2, maxReadyPollInterval)
	}
}

// PullModel downloads model, reporting progress from the streamed status
// lines. Malformed lines are skipped; an error line fails the pull.
func (m *Manager) PullModel(ctx context.Context, model string, progress func(PullProgress)) error {
	body, err := json.Marshal(map[string]any{"model": model, "stream": true})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Downloads take minutes; only ctx bounds them.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("failed to start pull: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("pull failed with status %d: %s", resp.StatusCode, msg)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var line struct {
			Status    string `json:"status"`
			Error     string `json:"error"`
			Total     int64  `json:"total"`
			Completed int64  `json:"completed"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Error != "" {
			return fmt.Errorf("pull %s: %s", model, line.Error)
		}
		if progress == nil {
			continue
		}
		p := PullProgress{Status: line.Status, Total: line.Total, Completed: line.Completed}
		if line.Total > 0 {
			p.Percent = float64(line.Completed) / float64(line.Total) * 100
		}
		progress(p)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading pull response: %w", err)
	}
	return ctx.Err()
}

// EnsureReady starts Ollama if needed and pulls model if it is missing.
// A remote host is never started; it must already be running.
func (m *Manager) EnsureReady(ctx context.Context, model string, opts EnsureOptions) error {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	if !m.IsRunning(ctx) {
		if m.IsRemoteHost() {
			return &NotRunningError{Host: m.host}
		}
		if installed, _ := m.IsInstalled(); !installed {
			return &NotInstalledError{}
		}
		if !opts.AutoStart {
			return &NotRunningError{Host: m.host}
		}

		_, _ = fmt.Fprintln(out, "Ollama is installed but not running. Starting...")
		if err := m.Start(); err != nil {
			return err
		}
		if err := m.WaitForReady(ctx, StartupTimeout); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, "Ollama started.")
	}

	has, err := m.HasModel(ctx, model)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	if opts.ConfirmPull != nil && !opts.ConfirmPull(model) {
		return &ModelNotFoundError{Model: model}
	}

	_, _ = fmt.Fprintf(out, "Pulling embedding model %s...\n", model)
	if err := m.PullModel(ctx, model, opts.Progress); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "\nModel %s ready.\n", model)
	return nil
}

// NotInstalledError indicates Ollama is not installed.
type NotInstalledError struct{}

func (e *NotInstalledError) Error() string {
	return "ollama is not installed"
}

// NotRunningError indicates Ollama does not answer at Host.
type NotRunningError struct {
	Host string
}

func (e *NotRunningError) Error() string {
	return "ollama is not running at " + e.Host
}

// ModelNotFoundError indicates the model is missing and was not pulled.
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %s not found", e.Model)
}

// InstallInstructions returns platform-specific install instructions.
func InstallInstructions() string {
	const suffix = "\n\nAfter installation, run: chatlens setup\nTo search without Ollama, set embeddings.provider: static"
	switch runtime.GOOS {
	case "darwin":
		return "Install Ollama from https://ollama.com/download\nor via Homebrew: brew install ollama" + suffix
	case "linux":
		return "Install Ollama:\n  curl -fsSL https://ollama.com/install.sh | sh" + suffix
	default:
		return "Install Ollama from https://ollama.com/download" + suffix
	}
}
