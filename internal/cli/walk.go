package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"market-sync/internal/series"
	"market-sync/internal/source"
	"market-sync/internal/syncer"
)

type WalkOptions struct {
	*RootOptions
	Date    string
	Count   int
	Sources bool
}

func NewWalkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WalkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "walk",
		Short: "Walk back from a date and sync price and flow tables",
		Long: `Walk visits count+1 calendar days, newest first, ending at --date. For each
day the price table is synced before the institutional flow table, both into
the per-series tables.`,
		Example: `  marketsync walk --date 20200110 --count 3
  marketsync walk -c config.yaml --sources`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWalk(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "start date as YYYYMMDD (default today)")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "days to walk back beyond --date (default sync.count)")
	cmd.Flags().BoolVar(&opts.Sources, "sources", false, "also sync the single-pass sources")

	return cmd
}

func runWalk(cmd *cobra.Command, opts *WalkOptions) error {
	start := series.Today()
	if opts.Date != "" {
		d, err := series.ParseDate(source.CompactDate, opts.Date)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid --date %q", opts.Date), err)
		}
		start = d
	}
	if opts.Count < 0 {
		return WrapExitError(ExitCommandError, "--count must be >= 0", nil)
	}

	app, err := NewApp(cmd.Context(), opts.RootOptions)
	if err != nil {
		return setupError(err)
	}
	defer app.Close()

	count := app.Cfg.Sync.Count
	if cmd.Flags().Changed("count") {
		count = opts.Count
	}
	req := syncer.PassRequest{
		Walk:    &syncer.WalkRequest{Start: start, Count: count},
		Sources: opts.Sources,
	}
	return runPass(cmd, app, opts.RootOptions, req)
}

func runPass(cmd *cobra.Command, app *App, opts *RootOptions, req syncer.PassRequest) error {
	rep, err := app.Runner.Run(cmd.Context(), req)
	if werr := writeReport(cmd.OutOrStdout(), opts.Format, rep); werr != nil {
		return WrapExitError(ExitCommandError, "write report", werr)
	}
	if err != nil {
		if rep == nil {
			return WrapExitError(ExitCommandError, "invalid pass", err)
		}
		return passError(err)
	}
	return nil
}
