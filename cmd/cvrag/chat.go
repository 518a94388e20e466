package main

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"cvrag/internal/client"
	"cvrag/internal/domain"
	"cvrag/internal/service"
	"cvrag/internal/tui"
)

// localChat serves the TUI from an in-process ChatService.
type localChat struct {
	chat *service.ChatService
}

func (l localChat) Chat(ctx context.Context, message, sessionID string) (*domain.ChatResponse, error) {
	return l.chat.Handle(ctx, domain.ChatRequest{Message: message, SessionID: sessionID})
}

func (l localChat) ResetSession(_ context.Context, sessionID string) (bool, error) {
	return l.chat.Sessions().Reset(sessionID), nil
}

func chatCMD(cfgPath *string) *cobra.Command {
	var apiURL string
	chat := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the CV in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var (
				port    tui.ChatPort
				samples = cfg.SampleQuestions
				title   = cfg.App.Name
			)
			if apiURL != "" {
				c := client.New(apiURL, time.Duration(cfg.LLM.TimeoutSecs+30)*time.Second)
				if qs, err := c.SampleQuestions(ctx); err == nil && len(qs) > 0 {
					samples = qs
				}
				port = c
			} else {
				a, err := buildApp(ctx, cfg)
				if err != nil {
					return err
				}
				defer a.Close()
				port = localChat{chat: a.chat}
				title = a.doc.Owner + " CV Chat"
			}

			_, err = tea.NewProgram(tui.New(port, title, samples), tea.WithAltScreen()).Run()
			return err
		},
	}
	chat.Flags().StringVar(&apiURL, "api", "", "base URL of a running cvrag server; empty runs in-process")
	return chat
}
