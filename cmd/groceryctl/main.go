// Package main 食材分類引擎的命令列工具
package main

import (
	"os"

	"ingredient-engine/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
