package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newFlushCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Deliver queued contributions to the remote catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Resolver.Flush(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "delivered: %d\nremaining: %d\n", result.Delivered, result.Remaining)
			return err
		},
	}
}

func newPendingCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List contributions waiting to be synced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			pending, err := a.Store.Pending(cmd.Context())
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending contributions")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCATEGORY\tSTORE\tATTEMPTS\tQUEUED\tLAST ERROR")
			for _, c := range pending {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					c.Mapping.NormalizedName,
					c.Mapping.Department,
					c.Mapping.StoreID,
					c.Attempts,
					c.EnqueuedAt.Format(time.RFC3339),
					c.LastError,
				)
			}
			return w.Flush()
		},
	}
}
