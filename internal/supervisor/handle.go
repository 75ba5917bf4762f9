package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Handle is one spawned worker sub-process with a stable name. The log
// file receives the worker's stdout and stderr and stays tailable after
// the process dies.
type Handle struct {
	Name    string
	LogPath string

	cmd     *exec.Cmd
	logFile *os.File

	mu      sync.Mutex
	exited  bool
	exitErr error
}

// spawnProcess launches the worker binary with the given args and env,
// routing output to a per-handle log file under logDir.
func spawnProcess(binary, name, logDir string, args, env []string) (*Handle, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logPath := filepath.Join(logDir, name+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	cmd := exec.Command(binary, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("start worker: %w", err)
	}

	h := &Handle{Name: name, LogPath: logPath, cmd: cmd, logFile: logFile}
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.exited = true
		h.exitErr = err
		h.mu.Unlock()
		logFile.Close()
	}()
	return h, nil
}

// Alive reports whether the sub-process is still running.
func (h *Handle) Alive() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.exited
}

// Stop sends SIGTERM and escalates to SIGKILL after the grace period.
func (h *Handle) Stop(grace time.Duration) error {
	if h == nil || !h.Alive() {
		return nil
	}
	_ = h.cmd.Process.Signal(syscall.SIGTERM)

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !h.Alive() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return h.cmd.Process.Kill()
}

// TailLog returns the last n lines of the handle's log file.
func TailLog(logPath string, n int) ([]string, error) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
