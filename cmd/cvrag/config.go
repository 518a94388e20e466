package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cvrag/internal/config"
)

func configCMD(cfgPath *string) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *cfgPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				p, err := config.DefaultUserConfigPath()
				if err != nil {
					return err
				}
				path = p
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			cfg.LLM.APIKey = redact(cfg.LLM.APIKey)
			cfg.VectorStore.Qdrant.APIKey = redact(cfg.VectorStore.Qdrant.APIKey)
			cfg.VectorStore.Pgvector.Password = redact(cfg.VectorStore.Pgvector.Password)
			cfg.VectorStore.Pgvector.URL = redact(cfg.VectorStore.Pgvector.URL)
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cfgCmd.AddCommand(initCmd, showCmd)
	return cfgCmd
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
