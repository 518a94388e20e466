package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	root := &cobra.Command{
		Use:           "cvrag",
		Short:         "Chat with a CV over retrieval-augmented generation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default ./config.yaml, then ~/.config/cvrag/config.yaml)")

	root.AddCommand(
		serveCMD(&cfgPath),
		ingestCMD(&cfgPath),
		migrateCMD(&cfgPath),
		chatCMD(&cfgPath),
		mcpCMD(&cfgPath),
		configCMD(&cfgPath),
	)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
