package cli

import (
	"github.com/spf13/cobra"

	"market-sync/internal/syncer"
)

func NewSourcesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "sources",
		Short:         "Sync the yield curve and index history sources once",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), rootOpts)
			if err != nil {
				return setupError(err)
			}
			defer app.Close()
			return runPass(cmd, app, rootOpts, syncer.PassRequest{Sources: true})
		},
	}
}
