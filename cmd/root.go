package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mcpdesk/ui"
)

var (
	cfgFile string
	debug   bool
)

// NewRootCmd builds the mcpdesk command tree.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mcpdesk",
		Short: "Chat with LLM providers using local MCP tool servers",
		Long: `mcpdesk streams conversations with Anthropic, OpenAI or W&B models and lets
them call tools exposed by local MCP servers. Without a subcommand it opens
the terminal chat; 'serve' exposes the same session over a local WebSocket.`,
		SilenceUsage: true,
		RunE:         runTUI,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/mcpdesk/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write a debug log to the data directory")

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewServersCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcpdesk version %s\n", version)
		},
	})

	return rootCmd
}

// Execute runs the command tree. Cobra has already printed any error it returns.
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

func runTUI(cmd *cobra.Command, args []string) error {
	events := ui.NewEventQueue()
	rt, err := bootstrap(events.Sink)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	// Servers and providers come up behind the UI; their status arrives as events.
	go rt.start(cmd.Context())

	return ui.Run(rt.chat, rt.manager, events)
}
