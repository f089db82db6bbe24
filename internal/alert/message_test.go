package alert

import (
	"strings"
	"testing"

	"github.com/user/pskwatch/internal/geo"
)

func TestComposeMessage(t *testing.T) {
	r := testReport(1, nil, intp(1523))
	r.Mode = ""
	r.TxPosition = &geo.Point{Lat: 41.5, Lon: -73}

	msg := Compose(r, "Distance 1523 km exceeds threshold of 1000 km.")
	if msg.Subject != "PSKReporter Alert: K2ABC" {
		t.Errorf("subject = %q", msg.Subject)
	}
	for _, want := range []string{
		"Alert Condition Met: Distance 1523 km exceeds threshold of 1000 km.\n",
		"- Transmitter: K2ABC\n",
		"- Receiver: W3XYZ\n",
		"- Frequency: 14,074,000 Hz (14.074 MHz)\n",
		"- Mode: Unknown\n",
		"- SNR: 0 dB\n",
		"- Distance: 1523 km\n",
		"- Timestamp: 2024-03-01T12:00:00Z\n",
		"Transmitter Location: 41.5000°, -73.0000°\n",
		"Receiver Location: Unknown\n",
	} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestGroupThousands(t *testing.T) {
	cases := map[int64]string{
		0:          "0",
		999:        "999",
		1000:       "1,000",
		3573000:    "3,573,000",
		28074000:   "28,074,000",
		-1234567:   "-1,234,567",
		1000000000: "1,000,000,000",
	}
	for in, want := range cases {
		if got := groupThousands(in); got != want {
			t.Errorf("groupThousands(%d) = %q, want %q", in, got, want)
		}
	}
}
