package listener

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/user/pskwatch/internal/ipfix"
	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/observability"
	"github.com/user/pskwatch/internal/util"
)

func testConfig() util.ListenConfig {
	return util.ListenConfig{
		Host:           "127.0.0.1",
		Port:           0,
		ReceiveTimeout: 200 * time.Millisecond,
		ReadBuffer:     65535,
		QueueSize:      64,
		Workers:        2,
	}
}

func datagram(t *testing.T, calls ...string) []byte {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	snr := 5
	recs := make([]model.Reception, len(calls))
	for i, c := range calls {
		recs[i] = model.Reception{
			TxCallsign: c,
			RxCallsign: "K2ABC",
			RxLocator:  "FN31",
			Frequency:  14074000,
			SNR:        &snr,
			Mode:       "FT8",
			Timestamp:  now,
		}
	}
	b, err := ipfix.ReceptionMessage(now, 1, 1, recs)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func send(t *testing.T, addr net.Addr, data []byte) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestListenerDeliversReceptions(t *testing.T) {
	var mu sync.Mutex
	var got []string
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}

	l := New(testConfig(), func(ctx context.Context, rec model.Reception) {
		mu.Lock()
		got = append(got, rec.TxCallsign)
		mu.Unlock()
	}, WithMetrics(metrics))
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	if l.State() != Running {
		t.Fatalf("state = %s, want running", l.State())
	}
	send(t, l.Addr(), datagram(t, "N4QRS", "W3XYZ"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	stats := l.Stats()
	if stats.Datagrams != 1 || stats.Receptions != 2 || stats.TemplateCount != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if got := testutil.ToFloat64(metrics.DatagramsTotal); got != 1 {
		t.Errorf("datagram metric = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Templates); got != 2 {
		t.Errorf("templates gauge = %v, want 2", got)
	}
}

func TestListenerCountsDecodeErrors(t *testing.T) {
	l := New(testConfig(), func(context.Context, model.Reception) {
		t.Error("garbage should not produce receptions")
	})
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	send(t, l.Addr(), []byte{0xde, 0xad, 0xbe, 0xef})
	waitFor(t, func() bool { return l.Stats().DecodeErrors == 1 })

	if l.State() != Running {
		t.Fatalf("listener should keep running after bad input, state = %s", l.State())
	}
}

func TestStopWithoutTrafficReturnsBeforeTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ReceiveTimeout = 2 * time.Second
	l := New(cfg, func(context.Context, model.Reception) {})
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= cfg.ReceiveTimeout {
		t.Fatalf("Stop took %v, want < %v", elapsed, cfg.ReceiveTimeout)
	}
	if l.State() != Stopped {
		t.Fatalf("state = %s, want stopped", l.State())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	l := New(testConfig(), func(context.Context, model.Reception) {})
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestStopDrainsQueuedReceptions(t *testing.T) {
	var handled atomic.Int32
	release := make(chan struct{})
	cfg := testConfig()
	cfg.Workers = 1

	l := New(cfg, func(context.Context, model.Reception) {
		<-release
		handled.Add(1)
	})
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}

	send(t, l.Addr(), datagram(t, "A1A", "B2B", "C3C", "D4D"))
	waitFor(t, func() bool { return l.Stats().Receptions == 4 })

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}
	if n := handled.Load(); n != 4 {
		t.Fatalf("handled %d receptions before Stop returned, want 4", n)
	}
}

func TestStartOnOccupiedPort(t *testing.T) {
	occupied, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer occupied.Close()

	cfg := testConfig()
	cfg.Port = occupied.LocalAddr().(*net.UDPAddr).Port

	l := New(cfg, func(context.Context, model.Reception) {})
	err = l.Start()
	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("expected BindError, got %v", err)
	}
	if bindErr.Addr != net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Port)) {
		t.Errorf("bind error addr = %s", bindErr.Addr)
	}
	if l.State() != Stopped {
		t.Fatalf("state = %s, want stopped", l.State())
	}
	if l.Addr() != nil {
		t.Fatal("no socket should be held after a failed start")
	}
}

func TestSecondListenerOnSamePortFails(t *testing.T) {
	cfg := testConfig()
	cfg.SocketBuffer = 1 << 16

	first := New(cfg, func(context.Context, model.Reception) {})
	if err := first.Start(); err != nil {
		t.Fatal(err)
	}
	defer first.Stop()

	cfg.Port = first.Addr().(*net.UDPAddr).Port

	second := New(cfg, func(context.Context, model.Reception) {})
	err := second.Start()
	if err == nil {
		second.Stop()
	}
	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("expected BindError from the second listener, got %v", err)
	}
	if second.State() != Stopped {
		t.Fatalf("state = %s, want stopped", second.State())
	}
	if first.State() != Running {
		t.Fatalf("first listener state = %s, want running", first.State())
	}
}

func TestStartTwiceFails(t *testing.T) {
	l := New(testConfig(), func(context.Context, model.Reception) {})
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()
	if err := l.Start(); err == nil {
		t.Fatal("second Start should fail while running")
	}
}
