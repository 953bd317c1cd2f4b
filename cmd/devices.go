// ABOUTME: devices subcommand listing mixer output devices
// ABOUTME: Also reports which stream player command was found
package cmd

import (
	"fmt"
	"io"

	"github.com/harperreed/cuebox/internal/backend"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List playback devices",
	Long:  `Print the mixer backend's output devices with their indexes, and the command the stream backend uses for named devices.`,
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	engine, err := backend.NewMalgoEngine(cfg.Audio.SampleRate, cfg.Audio.Volume)
	if err != nil {
		return err
	}
	mixer, err := backend.NewMixer(engine)
	if err != nil {
		engine.Close()
		return err
	}
	defer mixer.Close()

	command := cfg.Backend.StreamCommand
	if command == "" {
		command = backend.DetectCommand()
	}
	printDevices(cmd.OutOrStdout(), mixer.Devices(), command)
	return nil
}

func printDevices(w io.Writer, devices []backend.Device, command string) {
	fmt.Fprintln(w, "Mixer devices:")
	if len(devices) == 0 {
		fmt.Fprintln(w, "  (none, system default only)")
	}
	for _, d := range devices {
		fmt.Fprintf(w, "  [%d] %s\n", d.Index, d.Name)
	}

	fmt.Fprintln(w)
	if command == "" {
		fmt.Fprintln(w, "Stream command: (none found, default device only)")
	} else {
		fmt.Fprintf(w, "Stream command: %s\n", command)
	}
}
