package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mcpdesk/bridge"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the chat session over a local WebSocket",
		Long: `Runs the chat orchestrator headless and serves it at ws://<listen>/ws.
Every connected client receives the event stream and may send commands.
Stops on SIGINT or SIGTERM and shuts the tool servers down.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default from config, 127.0.0.1:8765)")
	return cmd
}

func runServe(ctx context.Context, listen string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := bridge.NewHub()
	rt, err := bootstrap(hub.Broadcast)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	if listen == "" {
		listen = rt.cfg.ListenAddr
	}

	rt.start(ctx)

	server := bridge.NewServer(hub, rt.chat,
		bridge.WithStatusSource(rt.manager),
		bridge.WithCredentials(rt.cfg.Credentials),
	)

	fmt.Printf("Serving on %s\n", color.CyanString("ws://%s/ws", listen))
	if err := server.ListenAndServe(ctx, listen); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	fmt.Println(color.YellowString("Shutting down..."))
	return nil
}
