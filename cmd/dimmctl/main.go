package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mscrnt/dimmctl/internal/version"
	_ "github.com/mscrnt/dimmctl/pkg/driver/ddr4"
)

var (
	// Build variables set by ldflags
	buildVersion string
	buildCommit  string
	buildTime    string
)

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dimmctl",
		Short: "Monitor and control DDR4 memory modules",
		Long: `dimmctl reads the SPD EEPROMs on the host's SMBus, reports the temperature
of DDR4 modules with a thermal sensor and drives the lighting of Corsair
Vengeance RGB modules.

Talking to the bus is unsafe and stays off unless enabled with --unsafe:
  smbus             - any SMBus access beyond reading the SPD EEPROMs
  ddr4_temperature  - reading the thermal sensor of generic modules
  vengeance_rgb     - reading and writing Vengeance RGB modules`,
		Version:       version.New(buildVersion, buildCommit, buildTime).Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Configuration file (default: ~/.config/dimmctl/config.yaml)")
	flags.StringVar(&a.sysfsRoot, "sysfs-root", "", "I2C sysfs root (default: /sys/bus/i2c)")
	flags.StringVar(&a.bus, "bus", "", "Only use the named bus, e.g. i2c-0")
	flags.StringSliceVar(&a.unsafe, "unsafe", nil, "Enable unsafe features (comma separated)")
	flags.StringVar(&a.vendor, "vendor", "", "Only devices with this vendor ID, e.g. 0x029e")
	flags.StringVar(&a.product, "product", "", "Only devices with this product ID")
	flags.StringVar(&a.address, "address", "", "Only devices at this address, e.g. 0x51")
	flags.StringVar(&a.match, "match", "", "Only devices whose description contains this text")
	flags.IntVar(&a.pick, "pick", -1, "Only the device with this index among the matches")
	flags.BoolVar(&a.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&a.logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(listCmd(a))
	rootCmd.AddCommand(busesCmd(a))
	rootCmd.AddCommand(statusCmd(a))
	rootCmd.AddCommand(setColorCmd(a))
	rootCmd.AddCommand(monitorCmd(a))
	rootCmd.AddCommand(historyCmd(a))
	rootCmd.AddCommand(agentCmd(a))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.New(buildVersion, buildCommit, buildTime)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Fprintln(cmd.OutOrStdout(), info)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
