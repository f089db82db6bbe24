package alert

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/user/pskwatch/internal/geo"
	"github.com/user/pskwatch/internal/model"
)

// Message is a composed alert.
type Message struct {
	Subject string
	Body    string
}

// Check applies thresholds to r. The reason names every satisfied
// condition, SNR first. Absent values never satisfy a condition.
func Check(r *model.Report, th model.Thresholds) (string, bool) {
	var parts []string
	if r.SNR != nil && *r.SNR >= th.SNR {
		parts = append(parts, fmt.Sprintf("SNR %d dB exceeds threshold of %d dB.", *r.SNR, th.SNR))
	}
	if r.Distance != nil && *r.Distance >= th.Distance {
		parts = append(parts, fmt.Sprintf("Distance %d km exceeds threshold of %d km.", *r.Distance, th.Distance))
	}
	return strings.Join(parts, " "), len(parts) > 0
}

// Compose builds the subject and plain-text body for r.
func Compose(r *model.Report, reason string) Message {
	mode := r.Mode
	if mode == "" {
		mode = "Unknown"
	}

	var b strings.Builder
	b.WriteString("PSKReporter Alert\n\n")
	fmt.Fprintf(&b, "Alert Condition Met: %s\n\n", reason)
	b.WriteString("Reception Details:\n")
	fmt.Fprintf(&b, "- Transmitter: %s\n", r.TxCallsign)
	fmt.Fprintf(&b, "- Receiver: %s\n", r.RxCallsign)
	fmt.Fprintf(&b, "- Frequency: %s Hz (%.3f MHz)\n", groupThousands(r.Frequency), float64(r.Frequency)/1e6)
	fmt.Fprintf(&b, "- Mode: %s\n", mode)
	fmt.Fprintf(&b, "- SNR: %d dB\n", valueOrZero(r.SNR))
	fmt.Fprintf(&b, "- Distance: %d km\n", valueOrZero(r.Distance))
	fmt.Fprintf(&b, "- Timestamp: %s\n\n", r.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Transmitter Location: %s\n", formatLocation(r.TxPosition))
	fmt.Fprintf(&b, "Receiver Location: %s\n\n", formatLocation(r.RxPosition))
	b.WriteString("This is an automated alert from pskwatch.\n")

	return Message{
		Subject: "PSKReporter Alert: " + r.TxCallsign,
		Body:    b.String(),
	}
}

func formatLocation(p *geo.Point) string {
	if p == nil {
		return "Unknown"
	}
	return p.String()
}

func valueOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// groupThousands formats n with comma separators.
func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
