package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mcpdesk/mcp"
)

// NewServersCmd creates the servers command.
func NewServersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "Start the configured tool servers and list their tools",
		Long: `Starts every enabled MCP server from the config, asks each one for its
tools, prints the result and stops them again. Useful for checking a
server configuration before starting a chat.`,
		RunE: runServers,
	}
}

func runServers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	manager := newManager(cfg)
	defer stopServers(manager)

	if err := manager.StartAll(ctx, cfg.Servers); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), color.YellowString("Warning: %v", err))
	}
	manager.DiscoverAll(ctx, manager.Supervisor().Running())

	writeServerTable(cmd.OutOrStdout(), manager.Status(), manager.Tools(ctx))
	return nil
}

func statusLabel(status mcp.ServerStatus) string {
	switch status {
	case mcp.StatusRunning:
		return color.GreenString(string(status))
	case mcp.StatusError:
		return color.RedString(string(status))
	default:
		return color.YellowString(string(status))
	}
}

// writeServerTable prints one row per configured server with the names of
// the tools it exposes.
func writeServerTable(out io.Writer, snapshots []mcp.ServerSnapshot, tools []mcp.ToolDescriptor) {
	if len(snapshots) == 0 {
		fmt.Fprintln(out, "No MCP servers are configured.")
		return
	}

	byServer := make(map[string][]string)
	for _, t := range tools {
		byServer[t.ServerName] = append(byServer[t.ServerName], t.Name)
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SERVER\tSTATUS\tPID\tTOOLS")
	for _, snap := range snapshots {
		names := byServer[snap.Name]
		sort.Strings(names)

		pid := "-"
		if snap.PID > 0 {
			pid = fmt.Sprint(snap.PID)
		}
		toolList := "-"
		if len(names) > 0 {
			toolList = strings.Join(names, ", ")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", snap.Name, statusLabel(snap.Status), pid, toolList)
	}
	w.Flush()

	for _, snap := range snapshots {
		if snap.LastError != "" {
			fmt.Fprintf(out, "%s %s: %s\n", color.RedString("✗"), snap.Name, snap.LastError)
		}
	}
}
