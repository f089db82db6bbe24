package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/user/pskwatch/internal/model"
)

// Path aggregates receptions of one transmitter by one receiver.
type Path struct {
	Tx       string `json:"tx"`
	Rx       string `json:"rx"`
	Count    int    `json:"count"`
	BestSNR  *int   `json:"best_snr,omitempty"`
	Distance *int   `json:"distance,omitempty"`
}

// Paths groups reports into transmitter -> receiver paths, ordered by
// transmitter and then receiver.
func Paths(reports []model.Report) []Path {
	type key struct{ tx, rx string }
	byKey := make(map[key]*Path)

	for i := range reports {
		r := &reports[i]
		k := key{r.TxCallsign, r.RxCallsign}
		p, ok := byKey[k]
		if !ok {
			p = &Path{Tx: r.TxCallsign, Rx: r.RxCallsign}
			byKey[k] = p
		}
		p.Count++
		if r.SNR != nil && (p.BestSNR == nil || *r.SNR > *p.BestSNR) {
			v := *r.SNR
			p.BestSNR = &v
		}
		if r.Distance != nil && p.Distance == nil {
			v := *r.Distance
			p.Distance = &v
		}
	}

	paths := make([]Path, 0, len(byKey))
	for _, p := range byKey {
		paths = append(paths, *p)
	}
	sort.Slice(paths, func(i, j int) bool {
		if paths[i].Tx != paths[j].Tx {
			return paths[i].Tx < paths[j].Tx
		}
		return paths[i].Rx < paths[j].Rx
	})
	return paths
}

// GeneratePathDiagram creates a Mermaid flowchart of transmitter -> receiver
// paths. Edge labels carry the reception count, best SNR and distance.
func GeneratePathDiagram(paths []Path) string {
	if len(paths) == 0 {
		return ""
	}

	var sb strings.Builder

	sb.WriteString("```mermaid\n")
	sb.WriteString(PathGraph(paths))
	sb.WriteString("```\n")

	return sb.String()
}

// PathGraph returns the bare Mermaid graph definition for paths.
func PathGraph(paths []Path) string {
	var sb strings.Builder

	sb.WriteString("flowchart LR\n")

	txSeen := make(map[string]bool)
	rxSeen := make(map[string]bool)
	for _, p := range paths {
		if !txSeen[p.Tx] {
			fmt.Fprintf(&sb, "    %s[%s]:::tx\n", nodeID("T", p.Tx), p.Tx)
			txSeen[p.Tx] = true
		}
	}
	for _, p := range paths {
		if !rxSeen[p.Rx] {
			fmt.Fprintf(&sb, "    %s(%s)\n", nodeID("R", p.Rx), p.Rx)
			rxSeen[p.Rx] = true
		}
	}

	sb.WriteString("\n")
	for _, p := range paths {
		fmt.Fprintf(&sb, "    %s -->|%s| %s\n", nodeID("T", p.Tx), edgeLabel(p), nodeID("R", p.Rx))
	}

	sb.WriteString("\n")
	sb.WriteString("    classDef tx fill:#90EE90\n")

	return sb.String()
}

func edgeLabel(p Path) string {
	parts := []string{fmt.Sprintf("%dx", p.Count)}
	if p.BestSNR != nil {
		parts = append(parts, fmt.Sprintf("%d dB", *p.BestSNR))
	}
	if p.Distance != nil {
		parts = append(parts, fmt.Sprintf("%d km", *p.Distance))
	}
	return strings.Join(parts, ", ")
}

// nodeID converts a callsign into a valid Mermaid node id. Portable
// suffixes like "/P" would otherwise break the syntax.
func nodeID(prefix, callsign string) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	for _, c := range callsign {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			sb.WriteRune(c)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
