package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/user/pskwatch/internal/model"
)

const (
	pidFileName    = "pskwatch.pid"
	statusFileName = "status.json"
)

// CheckRunning checks if the daemon is already running.
func CheckRunning(dataDir string) (bool, int) {
	data, err := os.ReadFile(filepath.Join(dataDir, pidFileName))
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	// Signal 0 probes for existence without delivering anything.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false, 0
	}

	return true, pid
}

// SendStop sends a stop signal to the running daemon.
func SendStop(dataDir string) error {
	running, pid := CheckRunning(dataDir)
	if !running {
		return fmt.Errorf("daemon is not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send signal: %w", err)
	}

	return nil
}

// StatusFile holds serialized daemon status.
type StatusFile struct {
	Running    bool                `json:"running"`
	PID        int                 `json:"pid"`
	StartTime  time.Time           `json:"start_time"`
	UpdatedAt  time.Time           `json:"updated_at"`
	Uptime     string              `json:"uptime"`
	ListenAddr string              `json:"listen_addr"`
	Listener   model.ListenerStats `json:"listener"`
	Watched    []string            `json:"watched"`
	Reports    int                 `json:"reports"`
	Alerts     int                 `json:"alerts"`
	Jobs       []JobStatus         `json:"jobs"`
}

// NewStatusFile converts a live status into its serialized form.
func NewStatusFile(status *DaemonStatus) *StatusFile {
	return &StatusFile{
		Running:    status.Running,
		PID:        status.PID,
		StartTime:  status.StartTime,
		UpdatedAt:  time.Now(),
		Uptime:     status.Uptime.Round(time.Second).String(),
		ListenAddr: status.ListenAddr,
		Listener:   status.Listener,
		Watched:    status.Watched,
		Reports:    status.Reports,
		Alerts:     status.Alerts,
		Jobs:       status.Jobs,
	}
}

// WriteStatusFile writes the daemon status to the data directory.
func WriteStatusFile(dataDir string, status *DaemonStatus) error {
	data, err := json.MarshalIndent(NewStatusFile(status), "", "  ")
	if err != nil {
		return err
	}

	// Write then rename so readers never see a partial file.
	path := filepath.Join(dataDir, statusFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadStatusFile reads the daemon status from the data directory.
func ReadStatusFile(dataDir string) (*StatusFile, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, statusFileName))
	if err != nil {
		return nil, err
	}

	var sf StatusFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, err
	}

	return &sf, nil
}
