package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"cvrag/internal/server"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat API",
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

			srv := server.New(a.chat, a.sessions, a.selection, server.Options{
				Server:             cfg.Server,
				App:                cfg.App,
				Owner:              a.doc.Owner,
				Summary:            a.summary,
				SampleQuestions:    cfg.SampleQuestions,
				LLMProvider:        a.model.Name(),
				LLMConfigured:      true,
				Embedder:           a.embedder.Name(),
				EmbedderConfigured: true,
			})
			if addr == "" {
				addr = cfg.Server.Address()
			}

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(addr); err != nil {
					errCh <- err
				}
				close(errCh)
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-sigChan:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
			}

			sctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (default server.host:server.port)")
	return serve
}
