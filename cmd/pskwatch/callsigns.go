package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/pskwatch/internal/storage"
)

var (
	thresholdSNR      int
	thresholdDistance int
	thresholdClear    bool
)

var callsignsCmd = &cobra.Command{
	Use:     "callsigns",
	Aliases: []string{"watch"},
	Short:   "Manage the watch-list",
	Long: `List, add and remove monitored callsigns.

A running daemon picks up changes on its next watch-list refresh.

Examples:
  pskwatch callsigns list
  pskwatch callsigns add N4QRS
  pskwatch callsigns threshold N4QRS --snr 5 --distance 2000
  pskwatch callsigns threshold N4QRS --clear`,
}

var callsignsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored callsigns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWatchStorage(func(ctx context.Context, ws *storage.WatchStorage) error {
			entries, err := ws.All(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No callsigns on the watch-list")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CALLSIGN\tACTIVE\tSNR\tDISTANCE\tADDED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n",
					e.Callsign, e.Active,
					optional(e.SNRThreshold, " dB"),
					optional(e.DistanceThreshold, " km"),
					e.CreatedAt.Local().Format("2006-01-02"))
			}
			return tw.Flush()
		})
	},
}

var callsignsAddCmd = &cobra.Command{
	Use:   "add CALLSIGN...",
	Short: "Add callsigns to the watch-list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWatchStorage(func(ctx context.Context, ws *storage.WatchStorage) error {
			for _, cs := range args {
				entry, err := ws.Add(ctx, cs)
				if err != nil {
					return fmt.Errorf("%q: %w", cs, err)
				}
				fmt.Printf("Watching %s\n", entry.Callsign)
			}
			return nil
		})
	},
}

var callsignsRemoveCmd = &cobra.Command{
	Use:     "remove CALLSIGN...",
	Aliases: []string{"rm"},
	Short:   "Stop monitoring callsigns",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWatchStorage(func(ctx context.Context, ws *storage.WatchStorage) error {
			for _, cs := range args {
				if err := ws.Remove(ctx, cs); err != nil {
					return err
				}
				fmt.Printf("Stopped watching %s\n", cs)
			}
			return nil
		})
	},
}

var callsignsThresholdCmd = &cobra.Command{
	Use:   "threshold CALLSIGN",
	Short: "Set per-callsign alert thresholds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var snr, distance *int
		if !thresholdClear {
			if cmd.Flags().Changed("snr") {
				snr = &thresholdSNR
			}
			if cmd.Flags().Changed("distance") {
				distance = &thresholdDistance
			}
			if snr == nil && distance == nil {
				return fmt.Errorf("set --snr, --distance or --clear")
			}
		}

		return withWatchStorage(func(ctx context.Context, ws *storage.WatchStorage) error {
			if err := ws.SetThresholds(ctx, args[0], snr, distance); err != nil {
				return err
			}
			entry, err := ws.Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: snr %s, distance %s\n", entry.Callsign,
				optional(entry.SNRThreshold, " dB"), optional(entry.DistanceThreshold, " km"))
			return nil
		})
	},
}

func init() {
	callsignsThresholdCmd.Flags().IntVar(&thresholdSNR, "snr", 0, "Minimum SNR in dB")
	callsignsThresholdCmd.Flags().IntVar(&thresholdDistance, "distance", 0, "Minimum distance in km")
	callsignsThresholdCmd.Flags().BoolVar(&thresholdClear, "clear", false, "Fall back to the global thresholds")

	callsignsCmd.AddCommand(callsignsListCmd, callsignsAddCmd, callsignsRemoveCmd, callsignsThresholdCmd)
}

func withWatchStorage(fn func(ctx context.Context, ws *storage.WatchStorage) error) error {
	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	return fn(context.Background(), storage.NewWatchStorage(db))
}

func optional(v *int, unit string) string {
	if v == nil {
		return "global"
	}
	return fmt.Sprintf("%d%s", *v, unit)
}
