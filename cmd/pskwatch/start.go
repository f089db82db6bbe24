package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/user/pskwatch/internal/daemon"
	"github.com/user/pskwatch/internal/listener"
	"github.com/user/pskwatch/internal/util"
	"github.com/user/pskwatch/internal/web"
)

var (
	foreground   bool
	withWeb      bool
	startWebPort int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pskwatch daemon",
	Long:  "Start the pskwatch daemon in the background to listen for PSKReporter datagrams.",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false,
		"Run in foreground instead of daemonizing")
	startCmd.Flags().BoolVar(&withWeb, "with-web", false,
		"Also start the web dashboard server")
	startCmd.Flags().IntVar(&startWebPort, "web-port", 0,
		"Port for web server when using --with-web (default from config)")
}

func runStart(cmd *cobra.Command, args []string) error {
	running, pid := daemon.CheckRunning(cfg.DataDir)
	if running {
		fmt.Printf("Daemon is already running (PID %d)\n", pid)
		return nil
	}

	if startWebPort == 0 {
		startWebPort = cfg.WebPort
	}

	if foreground {
		return runForeground()
	}

	return runDaemon()
}

func runForeground() error {
	fmt.Println("Starting pskwatch in foreground mode...")

	d, err := startDaemon(cfg)
	if err != nil {
		return err
	}

	var srv *web.Server
	if withWeb {
		status := func(context.Context) (any, error) {
			return daemon.NewStatusFile(d.GetStatus()), nil
		}
		h := web.NewHandlers(d.Reports(), d.Watchlist(), status, d.Metrics().Handler())
		srv = web.NewServer(h, startWebPort)
		go func() {
			if err := srv.Start(); err != nil {
				util.Error("web server error", "error", err)
			}
		}()
		fmt.Printf("Web dashboard: http://localhost:%d\n", startWebPort)
	}

	fmt.Printf("pskwatch listening on %s. Press Ctrl+C to stop.\n", d.Addr())

	d.Wait()

	if srv != nil {
		if err := srv.Stop(); err != nil {
			util.Warn("web server shutdown failed", "error", err)
		}
	}
	return d.Stop()
}

// startDaemon creates and starts a daemon. On failure everything New
// acquired is released.
func startDaemon(cfg *util.Config, opts ...daemon.Option) (*daemon.Daemon, error) {
	d, err := daemon.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		d.Stop()
		var bindErr *listener.BindError
		if errors.As(err, &bindErr) {
			return nil, fmt.Errorf("cannot listen on %s (is another collector running?): %w", bindErr.Addr, err)
		}
		return nil, fmt.Errorf("failed to start daemon: %w", err)
	}
	return d, nil
}

func runDaemon() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"start", "--foreground"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	if withWeb {
		args = append(args, "--with-web", "--web-port", strconv.Itoa(startWebPort))
	}

	// The child appends its own log lines to the log file; stderr catches panics.
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(executable, args...)
	child.Dir = cfg.DataDir
	child.Env = os.Environ()
	child.Stderr = logFile
	child.SysProcAttr = detachAttr()

	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	if err := child.Process.Release(); err != nil {
		util.Warn("failed to release process", "error", err)
	}

	fmt.Printf("pskwatch daemon started (PID %d)\n", child.Process.Pid)
	fmt.Printf("Logs: %s\n", cfg.LogFile)
	if withWeb {
		fmt.Printf("Web dashboard: http://localhost:%d\n", startWebPort)
	}

	return nil
}
