package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/train-control/tcc/internal/config"
	"github.com/train-control/tcc/internal/program"
)

func newProgramsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "programs",
		Short: "Work with programs files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Check a programs file and list its programs",
		Long: `Check a programs file and list its programs.

Example file:
  programs:
    - sequence: red, yellow
      command: next_left 2
    - sequence: blue
      command: stop`,
		Args: cobra.ExactArgs(1),
		RunE: runProgramsValidate,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "fmt <file>",
		Short: "Print a programs file in canonical form",
		Args:  cobra.ExactArgs(1),
		RunE:  runProgramsFmt,
	})
	return cmd
}

func runProgramsValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	programs, err := program.LoadFile(args[0])
	if err != nil {
		return err
	}

	// Later entries replace earlier ones with the same trigger.
	reg := program.NewRegistry()
	for _, p := range programs {
		if n := len(p.Trigger()); n > cfg.Decoder.MaxSequenceLength {
			return fmt.Errorf("%w: trigger %s has %d colors, longest readable run is %d",
				program.ErrInvalidProgram, p.Identity(), n, cfg.Decoder.MaxSequenceLength)
		}
		if reg.Register(p) {
			cmd.PrintErrf("warning: %s replaces an earlier program\n", p.Identity())
		}
	}
	out := cmd.OutOrStdout()
	for _, p := range reg.Programs() {
		fmt.Fprintln(out, p)
	}
	fmt.Fprintf(out, "%d programs OK\n", reg.Len())
	return nil
}

func runProgramsFmt(cmd *cobra.Command, args []string) error {
	programs, err := program.LoadFile(args[0])
	if err != nil {
		return err
	}
	out, err := program.Encode(programs)
	if err != nil {
		return fmt.Errorf("failed to encode programs: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
