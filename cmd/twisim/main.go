// cmd/twisim/main.go
//
// twisim drives the TWI master against a simulated AVR peripheral with
// virtual slaves, for trying out transactions and fault recovery on a host.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"twi-go/x/logx"
)

type options struct {
	configPath string
	logLevel   string
	hang       bool
	trace      bool
}

// env is what every subcommand gets after the persistent flags are applied.
type env struct {
	opts options
	log  zerolog.Logger
	cfg  config
}

func (e *env) rig() *rig {
	r := newRig(e.cfg, e.log)
	if e.opts.hang {
		r.hang()
	}
	return r
}

func newRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "twisim",
		Short:         "Exercise the TWI master on a simulated bus",
		Long:          "Run scans, register reads and writes, EEPROM transfers and a self test against a simulated AVR TWI peripheral.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, ok := logx.ParseLevel(e.opts.logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", e.opts.logLevel)
			}
			e.log = logx.New(cmd.ErrOrStderr(), "twisim", level)

			e.cfg = defaultConfig()
			if e.opts.configPath != "" {
				cfg, err := loadConfig(e.opts.configPath)
				if err != nil {
					return err
				}
				e.cfg = cfg
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&e.opts.configPath, "config", "c", "", "TOML rig description (default: built-in rig)")
	pf.StringVarP(&e.opts.logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, off)")
	pf.BoolVar(&e.opts.hang, "hang", false, "make the peripheral stall so the watchdog fires")
	pf.BoolVarP(&e.opts.trace, "trace", "t", false, "print the bus event log after the command")

	root.AddCommand(
		newScanCmd(e),
		newWriteCmd(e),
		newReadCmd(e),
		newEEPROMCmd(e),
		newSelftestCmd(e),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "twisim:", err)
		os.Exit(1)
	}
}
