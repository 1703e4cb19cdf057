package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/sshcollectorpro/junosconnect/pkg/junos"
)

var execCmd = &cobra.Command{
	Use:   "exec <command> [command ...]",
	Short: "Run operational commands on one device",
	Long: `Connect to the device and run each command in order, printing its output.

A command whose output carries a Junos error (syntax error, unknown command,
missing argument, configuration state) is reported on stderr and makes the
exit status non-zero.

Examples:
  junos exec --host 10.0.0.1 -u admin -p secret "show version"
  junos exec --host 10.0.0.1 -u admin --bastion-host jump1 "show chassis hardware"
  JUNIPER_HOST=10.0.0.1 JUNIPER_USER=admin junos exec "show interfaces terse"

Authenticating through a bastion:
  --bastion-password or JUNIPER_BASTION_PASSWORD  password for the jump host
  --key-files                                     private keys for both hops
  an ssh-agent holding the key                    used automatically via SSH_AUTH_SOCK`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
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

	failed := 0
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	for _, command := range args {
		res, err := conn.Execute(ctx, command)
		if err != nil {
			return err
		}
		if len(args) > 1 {
			fmt.Fprintf(out, "### %s\n", command)
		}
		if !res.Success() {
			failed++
			fmt.Fprint(errOut, ensureNewline(res.Stderr))
			continue
		}
		fmt.Fprint(out, ensureNewline(res.Stdout))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d command(s) failed", failed, len(args))
	}
	return nil
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
