package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	ktl "github.com/cortexrd/Knack-Toolkit-Library-sub001"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/kvstore"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logstore"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Add or inspect log entries in the shared store",
}

var logAddCmd = &cobra.Command{
	Use:   "add [category] [details]",
	Short: "Add a log entry",
	Long: `Adds a log entry to the shared store. A running worker-host uploads it
on the schedule of its category.

Example:
  ktlbus log add critical "payment form crashed"`,
	Args: cobra.ExactArgs(2),
	RunE: runLogAdd,
}

var logShowCmd = &cobra.Command{
	Use:   "show [category]",
	Short: "Print the stored batch of a category as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogShow,
}

func init() {
	logCmd.AddCommand(logAddCmd, logShowCmd)
}

// openAccumulator builds a log accumulator over the configured store without
// starting any runtime.
func openAccumulator(cmd *cobra.Command) (*logstore.Accumulator, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	ktl.SetDefaults(&cfg)

	b, err := connect(cmd.Context(), cfg.Namespace)
	if err != nil {
		return nil, nil, err
	}

	acc, err := logstore.New(kvstore.Namespace(b.store, cfg.Namespace), logstore.Config{
		UserID:              cfg.UserID,
		MaxEntries:          cfg.Logs.MaxEntries,
		EvictionHeadroom:    cfg.Logs.EvictionHeadroom,
		SingleSlot:          cfg.Logs.SingleSlot,
		MaintenanceInterval: cfg.Logs.MaintenanceInterval,
	}, logstore.WithLogger(logger))
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}

	return acc, func() { _ = b.Close() }, nil
}

func runLogAdd(cmd *cobra.Command, args []string) error {
	acc, closeFn, err := openAccumulator(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	category := ktl.Category(args[0])
	if err := acc.Add(cmd.Context(), category, args[1]); err != nil {
		return fmt.Errorf("add %s log: %w", category, err)
	}

	logger.Info("log entry added", "category", category, "key", acc.Key(category))

	return nil
}

func runLogShow(cmd *cobra.Command, args []string) error {
	acc, closeFn, err := openAccumulator(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	batch, err := acc.Batch(cmd.Context(), ktl.Category(args[0]))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(batch)
}
