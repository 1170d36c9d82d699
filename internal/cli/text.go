package cli

import (
	"errors"
	"fmt"
	"strings"

	"ingredient-engine/internal/core/ingredient"

	"github.com/spf13/cobra"
)

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <name>...",
		Short: "Print the normalized key of each ingredient name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, ingredient.Normalize(name))
			}
			return nil
		},
	}
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <quantity text>",
		Short: "Parse a free-text quantity such as \"1 1/2 cups flour\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := ingredient.ParseQuantity(strings.Join(args, " "))
			if parsed == nil {
				return errors.New("quantity text is blank")
			}
			return printJSON(cmd.OutOrStdout(), parsed)
		},
	}
}
