package main

import (
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/user/pskwatch/internal/daemon"
	"github.com/user/pskwatch/internal/listener"
	"github.com/user/pskwatch/internal/util"
)

func TestStartDaemonReportsOccupiedPort(t *testing.T) {
	occupied, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer occupied.Close()

	c := util.DefaultConfig()
	c.DataDir = t.TempDir()
	c.Listen.Host = "127.0.0.1"
	c.Listen.Port = occupied.LocalAddr().(*net.UDPAddr).Port
	c.Listen.ReceiveTimeout = 200 * time.Millisecond

	d, err := startDaemon(c, daemon.WithTraceWriter(io.Discard), daemon.WithoutSignals())
	if d != nil {
		t.Fatal("no daemon should be returned on failure")
	}
	var bindErr *listener.BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("expected BindError, got %v", err)
	}
	if !strings.Contains(err.Error(), "another collector") {
		t.Errorf("error = %q", err)
	}
	if running, _ := daemon.CheckRunning(c.DataDir); running {
		t.Error("no pid file should remain after a failed start")
	}
}
