package main

import (
	"fmt"
	"time"

	"github.com/danmuck/btlink/internal/config"
	"github.com/danmuck/btlink/internal/logging"
	"github.com/spf13/cobra"
)

// globalOptions holds persistent flags and the config resolved from them.
type globalOptions struct {
	configPath  string
	host        string
	port        uint16
	socketPath  string
	logLevel    string
	metricsAddr string
	timeout     time.Duration

	cfg config.Config
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "btctl",
		Short:         "Talk to a Bluetooth stack daemon over its packet socket",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logging.ConfigureRuntime()
			return opts.resolve(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to a TOML config file")
	pf.StringVar(&opts.host, "host", "", "daemon host for the network transport")
	pf.Uint16Var(&opts.port, "port", 0, "daemon TCP port; non-zero selects the network transport")
	pf.StringVar(&opts.socketPath, "socket", "", "daemon unix socket path")
	pf.StringVar(&opts.logLevel, "log-level", "", "trace|debug|info|warn|error|off")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	pf.DurationVar(&opts.timeout, "timeout", 3*time.Second, "how long to wait for a daemon reply")

	root.AddCommand(
		newMonitorCmd(opts),
		newStateCmd(opts),
		newVersionCmd(opts),
		newPowerCmd(opts),
		newConfigCmd(),
	)
	return root
}

// resolve loads the config file and applies explicitly set flags on top.
func (o *globalOptions) resolve(cmd *cobra.Command) error {
	cfg := config.DefaultConfig()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = o.host
	}
	if flags.Changed("port") {
		cfg.Port = o.port
	}
	if flags.Changed("socket") {
		cfg.SocketPath = o.socketPath
		if !flags.Changed("port") {
			cfg.Port = 0
		}
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if cfg.LogLevel != "" && !logging.SetLevel(cfg.LogLevel) {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}
