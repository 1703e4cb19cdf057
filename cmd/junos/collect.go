package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/sshcollectorpro/junosconnect/internal/database"
	"github.com/sshcollectorpro/junosconnect/internal/service"
	"github.com/sshcollectorpro/junosconnect/pkg/logger"
)

var (
	collectCommands []string
	collectJSON     bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a command list on every configured device and archive the output",
	Long: `Fan out over collect.targets (or the single device given by flags), one
connection per device, and archive each command's output under

  <archive.local.base_dir>/<archive.prefix>/<device>/<YYYYMMDD_HHMMSS>/<command>.txt

or the same key in MinIO when archive.backend is minio. When database.enabled
is true every command is also recorded in the command_logs table.

Examples:
  junos collect -c configs/junos.yaml
  junos collect --host 10.0.0.1 -u admin --command "show version" --command "show chassis hardware"`,
	Args: cobra.NoArgs,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().StringArrayVar(&collectCommands, "command", nil, "Command to run, repeatable (default: collect.commands)")
	collectCmd.Flags().Int("concurrent", 0, "Devices collected at the same time (default: collect.concurrent)")
	collectCmd.Flags().BoolVar(&collectJSON, "json", false, "Print the run summary as JSON")
}

func runCollect(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	commands := cfg.Collect.Commands
	if len(collectCommands) > 0 {
		commands = collectCommands
	}
	opts := []service.CollectorOption{
		service.WithStorage(service.NewStorageWriter(cfg.Archive)),
		service.WithConcurrency(cfg.Collect.Concurrent),
	}
	if cfg.Database.Enabled {
		if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
			return err
		}
		defer database.Close()
		opts = append(opts, service.WithDB(database.GetDB()))
	}

	run, err := service.NewCollector(opts...).Collect(ctx, cfg.TargetOptions(), commands)
	if err != nil && run == nil {
		return err
	}
	if err != nil {
		logger.Warnf("%v", err)
	}

	out := cmd.OutOrStdout()
	if collectJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return err
		}
	} else {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DEVICE\tRELEASE\tOK\tFAILED\tERROR")
		for _, d := range run.Devices {
			ok := 0
			for _, c := range d.Commands {
				if c.ExitCode == 0 {
					ok++
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", d.Target, d.Facts.Version, ok, len(d.Commands)-ok, d.Error)
		}
		tw.Flush()
		fmt.Fprintf(out, "run %s: %d device(s), %d failed, %s\n", run.RunID, len(run.Devices), run.Failed, run.Duration.Round(time.Millisecond))
	}

	if err != nil {
		return err
	}
	if run.Failed > 0 {
		return fmt.Errorf("%d device(s) failed", run.Failed)
	}
	return nil
}
