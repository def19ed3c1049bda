package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/voicecall/internal/app/call"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stay online and answer incoming calls",
	Args:  cobra.NoArgs,
	RunE:  runListen,
}

func init() {
	listenCmd.Flags().Bool("auto-accept", false, "Accept every incoming call without asking")
}

func runListen(cmd *cobra.Command, _ []string) error {
	autoAccept, _ := cmd.Flags().GetBool("auto-accept")

	c, err := newClient(cmd, cfg)
	if err != nil {
		return err
	}

	incoming := make(chan call.SessionSnapshot, 1)
	c.mgr.OnIncoming(func(s call.SessionSnapshot) {
		// Runs on the call loop; answering must happen elsewhere.
		select {
		case incoming <- s:
		default:
		}
	})

	return c.run(cmd.Context(), func(ctx context.Context) error {
		fmt.Fprintf(c.out, "%s waiting for calls\n", c.mgr.Self())
		answers := make(chan string)
		if !autoAccept {
			go readAnswers(ctx, answers)
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case s := <-incoming:
				name := s.RemoteDisplayName
				if name == "" {
					name = string(s.Remote)
				}
				accept := autoAccept
				if !autoAccept {
					fmt.Fprintf(c.out, "incoming call from %s, accept? [y/N] ", name)
					select {
					case <-ctx.Done():
						return nil
					case a := <-answers:
						accept = strings.EqualFold(strings.TrimSpace(a), "y")
					}
				}
				var err error
				if accept {
					err = c.mgr.Accept(ctx)
				} else {
					err = c.mgr.Reject(ctx)
				}
				if err != nil {
					log.Warn().Err(err).Str("module", "callclient").Str("peer", string(s.Remote)).Msg("answer failed")
				}
			}
		}
	})
}

func readAnswers(ctx context.Context, out chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}
