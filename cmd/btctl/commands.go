package main

import (
	"fmt"

	"github.com/danmuck/btlink/internal/config"
	"github.com/danmuck/btlink/internal/dispatch"
	"github.com/danmuck/btlink/internal/protocol/command"
	"github.com/danmuck/btlink/internal/protocol/event"
	"github.com/spf13/cobra"
)

func isState(msg dispatch.Message) bool {
	_, ok := msg.(event.State)
	return ok
}

// isSettledPower skips transitional states like initializing or halting.
func isSettledPower(msg dispatch.Message) bool {
	switch m := msg.(type) {
	case event.PowerOnFailed:
		return true
	case event.State:
		switch m.State {
		case event.StateWorking, event.StateOff, event.StateSleeping:
			return true
		}
	}
	return false
}

func newStateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the daemon's HCI state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			msg, err := s.request(cmd.Context(), command.GetState(), opts.timeout, isState)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg.(event.State).State)
			return nil
		},
	}
}

func newVersionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			msg, err := s.request(cmd.Context(), command.GetVersion(), opts.timeout, func(m dispatch.Message) bool {
				_, ok := m.(event.DaemonVersion)
				return ok
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg.(event.DaemonVersion))
			return nil
		},
	}
}

func newPowerCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "power on|off|sleep",
		Short:     "Set the controller power mode and print the resulting state",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off", "sleep"},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := command.ParsePowerMode(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			msg, err := s.request(cmd.Context(), command.SetPowerMode(mode), opts.timeout, isSettledPower)
			if err != nil {
				return err
			}
			if _, failed := msg.(event.PowerOnFailed); failed {
				return fmt.Errorf("daemon reported power on failure")
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg.(event.State).State)
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or check config files",
	}

	var kind string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a config template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[0], kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", kind, args[0])
			return nil
		},
	}
	initCmd.Flags().StringVar(&kind, "kind", "unix", "template kind: unix|tcp")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	checkCmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ok\n", args[0])
			return nil
		},
	}

	cfgCmd.AddCommand(initCmd, checkCmd)
	return cfgCmd
}
