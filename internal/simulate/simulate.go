// Package simulate produces synthetic PSKReporter traffic for demos and
// load checks against a running listener.
package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/user/pskwatch/internal/geo"
	"github.com/user/pskwatch/internal/ipfix"
	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/util"
)

// FT8 calling frequencies in Hz, 80m through 10m.
var Frequencies = []int64{
	3_573_000,
	7_074_000,
	10_136_000,
	14_074_000,
	18_100_000,
	21_074_000,
	24_915_000,
	28_074_000,
}

// Modes reported by the simulator.
var Modes = []string{"FT8", "FT4", "CW", "SSB", "PSK31"}

// Receivers used as reporting stations.
var Receivers = []string{"K2ABC", "W3XYZ", "N4QRS", "KD5TUV", "VE6WXY"}

const (
	minSNR          = -10
	maxSNR          = 24
	decoderSoftware = "pskwatch-simulator"
)

// Generator builds random receptions of the given transmitters.
type Generator struct {
	rng       *rand.Rand
	callsigns []string
	now       func() time.Time
}

// NewGenerator creates a generator. A fixed seed gives a repeatable stream.
func NewGenerator(callsigns []string, seed uint64) (*Generator, error) {
	clean := make([]string, 0, len(callsigns))
	for _, c := range callsigns {
		if cs := model.NormalizeCallsign(c); cs != "" {
			clean = append(clean, cs)
		}
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("no callsigns to simulate")
	}
	return &Generator{
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		callsigns: clean,
		now:       time.Now,
	}, nil
}

// Batch returns one to three receptions heard by a single random receiver.
// Stations are placed at random in North America.
func (g *Generator) Batch() []model.Reception {
	rx := Receivers[g.rng.IntN(len(Receivers))]
	rxLoc := geo.ToLocator(g.randomPoint())
	ts := g.now().UTC().Truncate(time.Second)

	n := g.rng.IntN(3) + 1
	batch := make([]model.Reception, n)
	for i := range batch {
		snr := minSNR + g.rng.IntN(maxSNR-minSNR+1)
		batch[i] = model.Reception{
			TxCallsign:      g.callsigns[g.rng.IntN(len(g.callsigns))],
			RxCallsign:      rx,
			Frequency:       Frequencies[g.rng.IntN(len(Frequencies))],
			SNR:             &snr,
			Mode:            Modes[g.rng.IntN(len(Modes))],
			TxLocator:       geo.ToLocator(g.randomPoint()),
			RxLocator:       rxLoc,
			DecoderSoftware: decoderSoftware,
			Timestamp:       ts,
		}
	}
	return batch
}

func (g *Generator) randomPoint() geo.Point {
	return geo.Point{
		Lat: 35 + g.rng.Float64()*15,
		Lon: -120 + g.rng.Float64()*40,
	}
}

// Options controls a simulation run.
type Options struct {
	Target   string
	Count    int
	Interval time.Duration
	Domain   uint32
}

// Run sends Count datagrams to Target, one every Interval. It returns the
// number of receptions sent.
func Run(ctx context.Context, g *Generator, opts Options) (int, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", opts.Target)
	if err != nil {
		return 0, fmt.Errorf("failed to dial %s: %w", opts.Target, err)
	}
	defer conn.Close()

	sent := 0
	for seq := 0; seq < opts.Count; seq++ {
		if seq > 0 && opts.Interval > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(opts.Interval):
			}
		}

		batch := g.Batch()
		data, err := ipfix.ReceptionMessage(g.now(), uint32(seq), opts.Domain, batch)
		if err != nil {
			return sent, err
		}
		if _, err := conn.Write(data); err != nil {
			return sent, fmt.Errorf("failed to send datagram: %w", err)
		}
		sent += len(batch)

		for _, r := range batch {
			util.Info("sent simulated reception", "tx", r.TxCallsign, "rx", r.RxCallsign,
				"freq", r.Frequency, "mode", r.Mode, "snr", *r.SNR)
		}
	}
	return sent, nil
}
