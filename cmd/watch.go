package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"streamspace/config"
	"streamspace/logging"
	"streamspace/services"
	"streamspace/types"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newWatchCommand(a *app) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "watch <hash>",
		Short: "Follow the progress of a download from a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := services.NormalizeID(args[0])
			if !ok {
				return fmt.Errorf("invalid hash %q: expected 40 hex characters", args[0])
			}
			if server == "" {
				server = fmt.Sprintf("localhost:%d", a.cfg.Server.Port)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conn, err := dialProgress(ctx, server, id, a.cfg.Retry)
			if err != nil {
				return err
			}
			defer conn.Close()

			go func() {
				<-ctx.Done()
				_ = conn.Close()
			}()

			return followProgress(conn, cmd.OutOrStdout(), id)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Server address (host:port), defaults to localhost and the configured port")
	return cmd
}

// dialProgress opens the per-job progress socket, retrying while the server
// comes up.
func dialProgress(ctx context.Context, server, id string, retry config.RetryConfig) (*websocket.Conn, error) {
	u := url.URL{Scheme: "ws", Host: server, Path: "/api/ws/downloads/" + id}

	conn, ok := services.Retry(ctx, func(ctx context.Context) (*websocket.Conn, bool, error) {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		return c, err == nil, err
	},
		services.WithMaxAttempts(retry.MaxAttempts),
		services.WithWait(retry.Wait),
		services.WithRetryLogger(logging.Component("watch")),
	)
	if !ok {
		return nil, fmt.Errorf("could not connect to %s", u.String())
	}
	return conn, nil
}

// followProgress renders messages until the job completes or the server
// closes the socket
func followProgress(conn *websocket.Conn, out io.Writer, id string) error {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(id[:8]),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)

	for {
		var msg types.ProgressMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read progress: %w", err)
		}

		bar.Describe(fmt.Sprintf("%s %s peers:%d eta:%s", id[:8], msg.Downloaded, msg.Peers, msg.ETA))
		_ = bar.Set(int(msg.Progress))

		if msg.Complete {
			_ = bar.Finish()
			fmt.Fprintf(out, "%s complete (%s)\n", id, msg.Downloaded)
			return nil
		}
	}
}
