package main

import (
	"github.com/spf13/cobra"

	"cvrag/internal/mcpserver"
)

func mcpCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the CV tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return mcpserver.Serve(mcpserver.New("cvrag", cfg.App.Version, a.chat, cfg.SampleQuestions))
		},
	}
}
