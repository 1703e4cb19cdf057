// Package main is the entrypoint for the junos CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sshcollectorpro/junosconnect/internal/config"
	"github.com/sshcollectorpro/junosconnect/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath string
	debug      bool
)

// cfg 由 PersistentPreRunE 加载
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "junos",
	Short: "Run commands on Juniper devices over interactive SSH",
	Long: `junos connects to Juniper appliances over an interactive SSH session,
directly or through a bastion host, runs operational commands and reports
device-specific errors.

Connection settings come from (lowest to highest priority) built-in defaults,
the config file, JUNIPER_* environment variables and command-line flags.`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Config file (default: ./configs/junos.yaml or ./junos.yaml)")
	pf.BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	pf.String("host", "", "Device hostname or address (JUNIPER_HOST)")
	pf.Int("port", 0, "Device SSH port (default 22)")
	pf.StringP("user", "u", "", "Login user (JUNIPER_USER)")
	pf.StringP("password", "p", "", "Login password (JUNIPER_PASSWORD)")
	pf.StringSlice("key-files", nil, "Private key files, comma separated")
	pf.Bool("keys-only", false, "Authenticate with keys and ssh-agent only")
	pf.String("timeout", "", "Per-call timeout in seconds or as a duration (default 30s)")
	pf.String("known-hosts", "", "Verify host keys against this known_hosts file")
	pf.String("bastion-host", "", "Jump host (JUNIPER_BASTION_HOST)")
	pf.String("bastion-user", "", "Jump host user (default root)")
	pf.Int("bastion-port", 0, "Jump host port (default 22)")
	pf.String("bastion-password", "", "Jump host password, defaults to the device password (JUNIPER_BASTION_PASSWORD)")
	pf.String("proxy-command", "", "Raw proxy command with %h %p %r placeholders (JUNIPER_PROXY_COMMAND)")
	pf.Bool("simulated", false, "Answer from built-in fixtures without connecting")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(factsCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(simulateCmd)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if debug {
		c.Log.Level = "debug"
	}
	if err := logger.Init(c.Log); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	cfg = c
	return nil
}

// signalContext SIGINT/SIGTERM 时取消
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
