package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zeusync/conduit/internal/core/observability/log"
	"github.com/zeusync/conduit/internal/core/protocol/quic"
	"github.com/zeusync/conduit/internal/core/protocol/websocket"
	"github.com/zeusync/conduit/internal/core/transport"
)

var sendCmd = &cobra.Command{
	Use:   "send <payload>",
	Short: "Send one payload and print the result and the first reply",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: runSend,
}

func init() {
	flags := sendCmd.Flags()
	flags.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL of the server")
	flags.String("quic-addr", "", "Send over QUIC to this address instead of WebSocket")
	flags.Bool("insecure", false, "Skip TLS certificate verification for QUIC")
	flags.Duration("timeout", 5*time.Second, "How long to wait for the send result and a reply")
	flags.Bool("no-reply", false, "Do not wait for a reply")
}

type client interface {
	transport.Handle
	Start() error
	Secure() bool
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
	defer cancel()

	var (
		h   client
		err error
	)
	if addr := viper.GetString("quic-addr"); addr != "" {
		h, err = quic.Dial(ctx, addr, quic.ClientTLSConfig(viper.GetBool("insecure")), quic.DefaultConfig(), log.Nop())
	} else {
		h, err = websocket.Dial(ctx, viper.GetString("url"), nil, websocket.Config{}, log.Nop())
	}
	if err != nil {
		return err
	}

	t := transport.New("cli", h, h.Secure(), transport.WithLogger(log.Nop()))
	defer t.Close()

	replies := make(chan []byte, 1)
	t.OnMessage().Subscribe(func(msg []byte) {
		select {
		case replies <- msg:
		default:
		}
	})
	t.OnError().Subscribe(func(err error) {
		cmd.PrintErrln("transport error:", err)
	})
	if err = h.Start(); err != nil {
		return err
	}

	ok, err := t.Send([]byte(args[0])).Wait(ctx)
	if err != nil {
		return errors.Wrap(err, "waiting for send result")
	}
	cmd.Printf("sent: %t\n", ok)
	if !ok || viper.GetBool("no-reply") {
		return nil
	}

	select {
	case reply := <-replies:
		cmd.Printf("reply: %s\n", reply)
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for reply")
	}
}
