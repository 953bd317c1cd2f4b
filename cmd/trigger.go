// ABOUTME: trigger subcommand sending one command to a running cuebox
// ABOUTME: Finds the instance by address or mDNS lookup and waits for its ack
package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/harperreed/cuebox/internal/discovery"
	"github.com/harperreed/cuebox/internal/logging"
	"github.com/harperreed/cuebox/internal/remote"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	triggerAddr    string
	triggerBackend string
	triggerDevice  string
	triggerTimeout time.Duration
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <play CLIP | next | clear | start MSEC | stop | device INDEX>",
	Short: "Send one command to a running cuebox",
	Long:  `Connect to a cuebox remote control endpoint, send a single command and print the reply. Without --addr the first instance found via mDNS is used.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTrigger,
}

func init() {
	triggerCmd.Flags().StringVar(&triggerAddr, "addr", "", "remote address host:port (default: mDNS lookup)")
	triggerCmd.Flags().StringVar(&triggerBackend, "backend", "", "backend for play/next (mixer or stream)")
	triggerCmd.Flags().StringVar(&triggerDevice, "device", "", "stream device for play/next")
	triggerCmd.Flags().DurationVar(&triggerTimeout, "timeout", 5*time.Second, "lookup and reply timeout")
	rootCmd.AddCommand(triggerCmd)
}

func runTrigger(cmd *cobra.Command, args []string) error {
	closer, err := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer closer.Close()

	msgType, payload, err := parseTrigger(args, triggerBackend, triggerDevice)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), triggerTimeout)
	defer cancel()

	addr := triggerAddr
	if addr == "" {
		found, err := discovery.NewManager(discovery.Config{}).Lookup(ctx, triggerTimeout/2)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return fmt.Errorf("no cuebox found via mDNS; pass --addr")
		}
		addr = found[0].Addr()
		log.Infof("Using %s at %s", found[0].Name, addr)
	}

	client, err := remote.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()

	ack, err := client.Send(ctx, msgType, payload)
	if err != nil {
		return err
	}
	printAck(cmd, ack)
	return nil
}

// parseTrigger turns CLI words into a remote command
func parseTrigger(args []string, backendName, device string) (string, interface{}, error) {
	switch args[0] {
	case "play":
		if len(args) != 2 {
			return "", nil, fmt.Errorf("play needs exactly one clip name")
		}
		return remote.TypePlay, remote.PlayCommand{Clip: args[1], Backend: backendName, Device: device}, nil
	case "next":
		return remote.TypeNext, remote.NextCommand{Backend: backendName, Device: device}, nil
	case "clear":
		return remote.TypeClear, nil, nil
	case "stop":
		return remote.TypePeriodicStop, nil, nil
	case "start":
		if len(args) != 2 {
			return "", nil, fmt.Errorf("start needs an interval in msec")
		}
		ms, err := strconv.Atoi(args[1])
		if err != nil {
			return "", nil, fmt.Errorf("invalid interval %q: %w", args[1], err)
		}
		return remote.TypePeriodicStart, remote.PeriodicStartCommand{IntervalMs: ms}, nil
	case "device":
		if len(args) != 2 {
			return "", nil, fmt.Errorf("device needs an index")
		}
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return "", nil, fmt.Errorf("invalid device index %q: %w", args[1], err)
		}
		return remote.TypeDeviceSelect, remote.DeviceSelectCommand{Index: index}, nil
	default:
		return "", nil, fmt.Errorf("unknown command %q", args[0])
	}
}

func printAck(cmd *cobra.Command, ack remote.Ack) {
	out := cmd.OutOrStdout()
	switch {
	case ack.RequestID != "":
		fmt.Fprintf(out, "%s accepted (request %s)\n", ack.Command, ack.RequestID)
	case ack.Device != "":
		fmt.Fprintf(out, "%s accepted (device %s)\n", ack.Command, ack.Device)
	default:
		fmt.Fprintf(out, "%s accepted\n", ack.Command)
	}
}
