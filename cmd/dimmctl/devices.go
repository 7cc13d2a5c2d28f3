package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mscrnt/dimmctl/pkg/driver"
	"github.com/mscrnt/dimmctl/pkg/smbus"
	"github.com/mscrnt/dimmctl/pkg/spd"
)

func listCmd(a *app) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the devices found on the SMBus",
		Long: `List every device a driver recognizes. Discovery only reads the SPD
EEPROMs through the kernel and needs no unsafe features.

Examples:
  # List all devices
  dimmctl list

  # Show IDs, addresses and the bus each device sits on
  dimmctl list --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devs, err := a.findDevices()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, dev := range devs {
				fprintf(out, "Device #%d: %s\n", i, dev.Description())
				if verbose {
					printDeviceDetails(out, dev)
					fprintf(out, "\n")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show device and bus details")

	return cmd
}

func printDeviceDetails(w io.Writer, dev driver.Device) {
	info := smbus.Describe(dev.Bus())

	rows := [][2]string{
		{"Vendor ID", fmt.Sprintf("0x%04x", dev.VendorID())},
		{"Product ID", fmt.Sprintf("0x%04x", dev.ProductID())},
	}
	if d, ok := dev.(spdDevice); ok {
		rows = append(rows, moduleRows(d.SPD())...)
	}
	rows = append(rows,
		[2]string{"Bus", info.String()},
		[2]string{"Address", fmt.Sprintf("0x%02x", dev.Address())},
	)
	if info.ParentDriver != "" {
		rows = append(rows, [2]string{"Bus driver", info.ParentDriver})
	}
	if info.ParentVendorName != "" {
		rows = append(rows, [2]string{"Bus controller", strings.TrimSpace(info.ParentVendorName + " " + info.ParentDeviceName)})
	}
	rows = append(rows, [2]string{"Driver", strings.TrimPrefix(fmt.Sprintf("%T", dev), "*")})

	for i, row := range rows {
		fprintf(w, "%s %s: %s\n", treeBranch(i, len(rows)), row[0], row[1])
	}
}

// spdDevice is implemented by devices found through their SPD EEPROM
type spdDevice interface {
	SPD() *spd.DDR4
}

// moduleRows lists the module details decoded from its SPD; fields left
// blank by the vendor are omitted
func moduleRows(dump *spd.DDR4) [][2]string {
	var rows [][2]string
	if pn, ok := dump.PartNumber(); ok {
		rows = append(rows, [2]string{"Part number", pn})
	}
	if capacity, ok := dump.CapacityBytes(); ok {
		rows = append(rows, [2]string{"Capacity", formatCapacity(capacity)})
	}
	rows = append(rows, [2]string{"Ranks", strconv.Itoa(dump.Ranks())})
	if serial, ok := dump.SerialNumber(); ok {
		rows = append(rows, [2]string{"Serial", serial})
	}
	if date, ok := dump.ManufacturingDate(); ok {
		rows = append(rows, [2]string{"Manufactured", date})
	}
	return rows
}

func formatCapacity(bytes uint64) string {
	const gib = 1 << 30
	if bytes%gib == 0 {
		return fmt.Sprintf("%d GiB", bytes/gib)
	}
	return fmt.Sprintf("%d MiB", bytes>>20)
}

func treeBranch(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func busesCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "buses",
		Short: "List the I2C/SMBus adapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var infos []smbus.Info
			for bus := range a.busRoot().Buses(smbus.Filter{Bus: a.bus}) {
				infos = append(infos, smbus.Describe(bus))
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if infos == nil {
					infos = []smbus.Info{}
				}
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(infos)
			}

			for _, info := range infos {
				fprintf(out, "%s\n", info)
				if info.ParentDriver != "" {
					fprintf(out, "└── Driver: %s\n", info.ParentDriver)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}

type deviceStatus struct {
	Description string          `json:"description"`
	Bus         string          `json:"bus"`
	Address     uint8           `json:"address"`
	Status      []driver.Status `json:"status"`
}

func statusCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of the devices",
		Long: `Read the status of each device. Thermal sensors are only read when the
matching unsafe features are enabled; without them the device reports
nothing.

Examples:
  # Temperatures of Vengeance RGB modules
  dimmctl status --unsafe smbus,vengeance_rgb

  # Temperature of the module in slot 2
  dimmctl status --address 0x51 --unsafe smbus,ddr4_temperature`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devs, err := a.requireDevices()
			if err != nil {
				return err
			}

			tokens := a.tokens()
			var results []deviceStatus
			var errs []error

			for _, dev := range devs {
				err := driver.WithConnection(dev, driver.ConnectOptions{Unsafe: tokens}, func(dev driver.Device) error {
					status, err := dev.Status(driver.StatusOptions{Unsafe: tokens})
					if err != nil {
						return err
					}
					results = append(results, deviceStatus{
						Description: dev.Description(),
						Bus:         dev.Bus().Name(),
						Address:     dev.Address(),
						Status:      status,
					})
					return nil
				})
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", dev.Description(), err))
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if results == nil {
					results = []deviceStatus{}
				}
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					printStatus(out, r)
				}
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}

func printStatus(w io.Writer, r deviceStatus) {
	fprintf(w, "%s\n", r.Description)

	width := 0
	for _, s := range r.Status {
		width = max(width, len(s.Label))
	}
	for i, s := range r.Status {
		fprintf(w, "%s %-*s  %6.2f  %s\n", treeBranch(i, len(r.Status)), width, s.Label, s.Value, s.Unit)
	}
	fprintf(w, "\n")
}

func setColorCmd(a *app) *cobra.Command {
	var speed string

	cmd := &cobra.Command{
		Use:   "set-color CHANNEL MODE [COLOR...]",
		Short: "Set the lighting mode of the devices",
		Long: `Set a lighting mode. Colors are given as rrggbb hex values.

Vengeance RGB modules have a single channel, led, and the modes off, fixed
(one color), breathing (one or two colors) and fading (two colors).

Examples:
  # Solid red
  dimmctl set-color led fixed ff0000 --unsafe smbus,vengeance_rgb

  # Fade between blue and white on the module in slot 4
  dimmctl set-color led fading 0000ff ffffff --address 0x53 --unsafe smbus,vengeance_rgb`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			channel, mode := args[0], args[1]

			colors := make([]driver.Color, 0, len(args)-2)
			for _, s := range args[2:] {
				c, err := driver.ParseColor(s)
				if err != nil {
					return err
				}
				colors = append(colors, c)
			}

			devs, err := a.requireDevices()
			if err != nil {
				return err
			}

			tokens := a.tokens()
			opts := driver.ColorOptions{Unsafe: tokens, Speed: speed}
			var errs []error
			applied := 0

			for _, dev := range devs {
				if _, ok := dev.(driver.ColorSetter); !ok {
					a.log.Debugf("%s has no lighting control", dev.Description())
					continue
				}
				err := driver.WithConnection(dev, driver.ConnectOptions{Unsafe: tokens}, func(dev driver.Device) error {
					return driver.SetColor(dev, channel, mode, colors, opts)
				})
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", dev.Description(), err))
					continue
				}
				applied++
			}

			if applied == 0 && len(errs) == 0 {
				return fmt.Errorf("set color: %w", driver.ErrNotSupported)
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().StringVar(&speed, "speed", "", "Animation speed: "+strings.Join(driver.Speeds, ", "))

	return cmd
}
