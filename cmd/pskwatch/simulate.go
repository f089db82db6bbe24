package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/pskwatch/internal/simulate"
)

var (
	simTarget    string
	simCount     int
	simInterval  time.Duration
	simCallsigns []string
	simSeed      uint64
	simDomain    uint32
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Send synthetic PSKReporter datagrams",
	Long: `Send randomly generated reception reports to a listener.

Transmitters default to the monitored callsigns from the config.

Examples:
  pskwatch simulate --count 20
  pskwatch simulate --target 10.0.0.5:4739 --callsign N4QRS --interval 500ms`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simTarget, "target", "",
		"Listener address (default 127.0.0.1 on the configured port)")
	simulateCmd.Flags().IntVarP(&simCount, "count", "n", 10, "Number of datagrams to send")
	simulateCmd.Flags().DurationVar(&simInterval, "interval", time.Second, "Delay between datagrams")
	simulateCmd.Flags().StringSliceVar(&simCallsigns, "callsign", nil, "Transmitter callsigns")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 0, "Random seed (default: time based)")
	simulateCmd.Flags().Uint32Var(&simDomain, "domain", 1, "Observation domain id")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simTarget == "" {
		simTarget = net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Listen.Port))
	}
	callsigns := simCallsigns
	if len(callsigns) == 0 {
		callsigns = cfg.MonitoredCallsigns
	}
	seed := simSeed
	if !cmd.Flags().Changed("seed") {
		seed = uint64(time.Now().UnixNano())
	}

	g, err := simulate.NewGenerator(callsigns, seed)
	if err != nil {
		return fmt.Errorf("%w (use --callsign or monitored_callsigns)", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Sending %d datagrams to %s\n", simCount, simTarget)
	sent, err := simulate.Run(ctx, g, simulate.Options{
		Target:   simTarget,
		Count:    simCount,
		Interval: simInterval,
		Domain:   simDomain,
	})
	fmt.Printf("Sent %d receptions\n", sent)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
