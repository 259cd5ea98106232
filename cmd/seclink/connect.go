package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opd-ai/seclink"
	"github.com/opd-ai/seclink/protocol"
)

// message is the generic application model used by the CLI.
type message = map[string]any

func connectCmd(flags *globalFlags) *cobra.Command {
	var (
		address string
		code    string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Open a session and submit an access code",
		Long: `Connect to a server, complete the key exchange, submit the access code
and print every message the server sends until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			options, err := flags.setup(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("address") {
				options.Config.Session.Address = address
			}

			client, err := seclink.NewClient[message](options)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			client.OnError(func(e *protocol.Error) {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", e)
			})
			client.OnCodeEvaluation(func(ok bool) {
				if ok {
					fmt.Fprintln(out, "Access code accepted")
				} else {
					fmt.Fprintln(out, "Access code rejected")
				}
			})
			client.OnData(func(m message) {
				data, err := json.Marshal(m)
				if err != nil {
					fmt.Fprintf(out, "%v\n", m)
					return
				}
				fmt.Fprintf(out, "%s\n", data)
			})

			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer client.Disconnect()

			if err := client.WaitForHandshake(ctx); err != nil {
				return fmt.Errorf("handshake: %w", err)
			}
			fmt.Fprintf(out, "Connected to %s\n", client.Address())
			fmt.Fprintf(out, "Server key fingerprint: %s\n", client.ServerFingerprint())

			if code != "" {
				client.SendCode(code)
			}

			select {
			case <-ctx.Done():
				fmt.Fprintln(out, "Disconnecting...")
			case <-client.Done():
				fmt.Fprintln(out, "Session closed by server")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Server address as host:port")
	cmd.Flags().StringVar(&code, "code", "", "Access code to submit after the handshake")

	return cmd
}
