// Package cli 提供 groceryctl 的 cobra 指令
package cli

import (
	"context"
	"encoding/json"
	"io"

	"ingredient-engine/internal/app"
	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/pkg/common"

	"github.com/spf13/cobra"
)

type options struct {
	dbPath  string
	offline bool
	verbose bool
}

// NewRootCmd 建立指令樹
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "groceryctl",
		Short: "Inspect and maintain the ingredient classification engine",
		Long: `groceryctl - ingredient classification engine tools
  - normalize and parse ingredient text
  - classify or tag ingredients against the local store
  - inspect and flush the contribution outbox`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.dbPath, "db", "", "local store path (overrides LOCAL_STORE_PATH)")
	flags.BoolVar(&opts.offline, "offline", false, "start in offline mode")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "write debug logs")

	root.AddCommand(
		newNormalizeCmd(),
		newParseCmd(),
		newClassifyCmd(opts),
		newTagCmd(opts),
		newFlushCmd(opts),
		newPendingCmd(opts),
	)
	return root
}

// Execute 執行指令
func Execute() error {
	return NewRootCmd().Execute()
}

// open 載入設定並組裝服務，呼叫端負責 Close
func (o *options) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.LocalStore.Path = o.dbPath
	}
	if o.offline {
		cfg.Sync.StartOnline = false
	}
	if o.verbose {
		if err := common.InitLogger("debug", cfg.LogDir); err != nil {
			return nil, err
		}
	}
	return app.New(ctx, cfg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
