package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchkit/pkg/coordinator"
)

func (a *app) unlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Clear a writer lock left behind by a crashed process",
		Long: `Clear the writer lock record of an index.

Use it only when the process that held the lock is gone. Clearing a lock
that a live writer holds lets two writers modify the index at once. Lock
records persist across processes only with the file lock backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withCoordinator(cmd.Context(), func(c *coordinator.Coordinator) error {
				cleared, err := c.Unlock(a.location)
				if err != nil {
					return err
				}
				if !cleared {
					return a.out(cmd).Done("no lock held on %s", a.location)
				}
				return a.out(cmd).Done("cleared lock on %s", a.location)
			})
		},
	}
}
