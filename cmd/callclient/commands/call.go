package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkeye/voicecall/internal/domain"
)

var callCmd = &cobra.Command{
	Use:   "call <user>",
	Short: "Call a user and stay in the call until it ends",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

func init() {
	callCmd.Flags().Duration("duration", 0, "Hang up after this long in the call (0 waits for the peer)")
	callCmd.Flags().Duration("camera-after", 0, "Turn the camera on this long after the call is up (0 never)")
}

func runCall(cmd *cobra.Command, args []string) error {
	to, err := domain.ParseUserID(args[0])
	if err != nil {
		return err
	}
	duration, _ := cmd.Flags().GetDuration("duration")
	cameraAfter, _ := cmd.Flags().GetDuration("camera-after")

	c, err := newClient(cmd, cfg)
	if err != nil {
		return err
	}

	var reason domain.EndReason
	err = c.run(cmd.Context(), func(ctx context.Context) error {
		snap, err := c.mgr.Call(ctx, to)
		if err != nil {
			return fmt.Errorf("call %s: %w", to, err)
		}
		fmt.Fprintf(c.out, "call %s placed\n", snap.ID)

		if duration > 0 || cameraAfter > 0 {
			go c.script(ctx, duration, cameraAfter)
		}
		reason = c.waitEnded(ctx)
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, reason.Status())
	return nil
}

// script drives timed actions once the call is active.
func (c *client) script(ctx context.Context, duration, cameraAfter time.Duration) {
	for c.mgr.Current().State != domain.StateActive {
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
		if !c.mgr.Current().State.Live() {
			return
		}
	}
	var camera, hangup <-chan time.Time
	if cameraAfter > 0 {
		camera = time.After(cameraAfter)
	}
	if duration > 0 {
		hangup = time.After(duration)
	}
	for camera != nil || hangup != nil {
		select {
		case <-ctx.Done():
			return
		case <-camera:
			camera = nil
			if err := c.mgr.ToggleCamera(ctx); err != nil {
				fmt.Fprintf(c.out, "camera: %v\n", err)
			}
		case <-hangup:
			hangup = nil
			_ = c.mgr.End(ctx)
		}
	}
}
