package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"agentstore/internal/storage"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Query the tool-call audit log",
}

var toolsLimit int

var toolsLogCmd = &cobra.Command{
	Use:   "log <file> [name|since:<epoch>]",
	Short: "List recorded tool calls",
	Long: `List audit rows, most recent first. With a name argument only that
tool's calls are shown; with since:<epoch> only calls started at or
after the given Unix second.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runToolsLog,
}

var toolsStatsCmd = &cobra.Command{
	Use:   "stats <file>",
	Short: "Print per-tool aggregates",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolsStats,
}

func init() {
	toolsLogCmd.Flags().IntVar(&toolsLimit, "limit", 20, "maximum rows to print (0 = all)")
	toolsCmd.AddCommand(toolsLogCmd, toolsStatsCmd)
	rootCmd.AddCommand(toolsCmd)
}

func runToolsLog(cmd *cobra.Command, args []string) error {
	ranCommand = true
	store, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer store.Close()
	audit := storage.NewAudit(store)

	var calls []storage.ToolCall
	switch {
	case len(args) == 1:
		calls, err = audit.Since(cmd.Context(), 0, toolsLimit)
	case len(args[1]) > 6 && args[1][:6] == "since:":
		var epoch int64
		epoch, err = strconv.ParseInt(args[1][6:], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid epoch in %q: %w", args[1], err)
		}
		calls, err = audit.Since(cmd.Context(), epoch, toolsLimit)
	default:
		calls, err = audit.ByName(cmd.Context(), args[1], toolsLimit)
	}
	if err != nil {
		return err
	}

	for _, c := range calls {
		status := "ok"
		if c.Error != "" {
			status = "error: " + c.Error
		}
		fmt.Printf("%d  %s  %s  %dms  %s\n",
			c.ID, c.StartedAt.UTC().Format("2006-01-02 15:04:05"), c.Name, c.DurationMs, status)
	}
	return nil
}

func runToolsStats(cmd *cobra.Command, args []string) error {
	ranCommand = true
	store, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := storage.NewAudit(store).Stats(cmd.Context())
	if err != nil {
		return err
	}
	for _, s := range stats {
		fmt.Printf("%s  total=%d ok=%d failed=%d avg=%.1fms\n",
			s.Name, s.Total, s.Successful, s.Failed, s.AvgDurationMs)
	}
	return nil
}
