package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const longDescription = `Terminal weather with a background refresh loop.

Weather data by Open-Meteo.com (https://open-meteo.com/), licensed under CC BY 4.0.

Keys (type and press Enter): r refreshes now, q quits.
On Unix, SIGUSR1 also triggers a refresh.`

type options struct {
	simulate     string
	night        bool
	autoLocation bool
	hideLocation bool
	imperial     bool
	metric       bool
	silent       bool
	setDefault   bool
	duration     uint
	serve        string
	verbose      bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "weathr [city...]",
		Short:         "Terminal weather display",
		Long:          longDescription,
		Example:       "  weathr london\n  weathr --simulate rain --night\n  weathr --set-default berlin\n  weathr --serve 127.0.0.1:8080",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.simulate, "simulate", "s", "", "Simulate weather condition (clear, rain, drizzle, snow, etc.)")
	flags.BoolVarP(&opts.night, "night", "n", false, "Simulate night time")
	flags.BoolVar(&opts.autoLocation, "auto-location", false, "Auto-detect location via IP (uses ipinfo.io)")
	flags.BoolVar(&opts.hideLocation, "hide-location", false, "Hide location in the status line")
	flags.BoolVar(&opts.imperial, "imperial", false, "Use imperial units (°F, mph, inch)")
	flags.BoolVar(&opts.metric, "metric", false, "Use metric units (°C, km/h, mm)")
	flags.BoolVar(&opts.silent, "silent", false, "Suppress informational output")
	flags.BoolVar(&opts.setDefault, "set-default", false, "Save the given city (or the detected location) as the default and exit")
	flags.UintVarP(&opts.duration, "duration", "d", 0, "Run for `SECONDS` then exit")
	flags.StringVar(&opts.serve, "serve", "", "Start the status server on `ADDR` (e.g. 127.0.0.1:8080)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr instead of the log file")
	cmd.MarkFlagsMutuallyExclusive("imperial", "metric")

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errExitQuietly) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}
