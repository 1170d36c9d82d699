package cli

import (
	"strings"

	"ingredient-engine/internal/core/resolution"

	"github.com/spf13/cobra"
)

func newClassifyCmd(opts *options) *cobra.Command {
	var req resolution.Request
	cmd := &cobra.Command{
		Use:   "classify <name>",
		Short: "Resolve an ingredient through the classification tiers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			req.Name = strings.Join(args, " ")
			res, err := a.Resolver.Resolve(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&req.StoreID, "store", "", "store id")
	cmd.Flags().StringVar(&req.ChainID, "chain", "", "chain id")
	return cmd
}

func newTagCmd(opts *options) *cobra.Command {
	var req resolution.TagRequest
	cmd := &cobra.Command{
		Use:   "tag <name> <category>",
		Short: "Store a manual classification and queue it for sync",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			req.Name, req.Category = args[0], args[1]
			m, err := a.Resolver.Tag(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
	cmd.Flags().StringVar(&req.Aisle, "aisle", "", "aisle label")
	cmd.Flags().StringVar(&req.StoreID, "store", "", "store id")
	cmd.Flags().StringVar(&req.ChainID, "chain", "", "chain id")
	return cmd
}
