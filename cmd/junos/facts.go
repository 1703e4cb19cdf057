package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sshcollectorpro/junosconnect/pkg/junos"
)

var factsJSON bool

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Show the device's Junos release and architecture",
	Args:  cobra.NoArgs,
	RunE:  runFacts,
}

func init() {
	factsCmd.Flags().BoolVar(&factsJSON, "json", false, "Print as JSON")
}

func runFacts(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	conn, err := junos.NewFromMap(cfg.Device.OptionMap())
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.Connect(ctx); err != nil {
		return err
	}

	p := conn.Platform(ctx)
	if factsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	unknown := func(s string) string {
		if s == "" {
			return "unknown"
		}
		return s
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "device:   %s\n", conn)
	fmt.Fprintf(out, "platform: %s (%v)\n", p.Name, p.Families)
	fmt.Fprintf(out, "release:  %s\n", unknown(p.Release))
	fmt.Fprintf(out, "arch:     %s\n", unknown(p.Arch))
	fmt.Fprintf(out, "model:    %s\n", unknown(p.Model))
	return nil
}
