package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opd-ai/seclink"
	"github.com/opd-ai/seclink/protocol"
)

func discoverCmd(flags *globalFlags) *cobra.Command {
	var (
		port    int
		name    string
		timeout time.Duration
		budget  time.Duration
		target  string
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find servers on the local network",
		Long:  "Broadcast a discovery request and list every server that answers within the time budget.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			options, err := flags.setup(ctx)
			if err != nil {
				return err
			}

			d := &options.Config.Discovery
			if cmd.Flags().Changed("port") {
				d.Port = port
			}
			if cmd.Flags().Changed("name") {
				d.Name = name
			}
			if cmd.Flags().Changed("timeout") {
				d.AttemptTimeoutMs = int(timeout.Milliseconds())
			}
			if cmd.Flags().Changed("budget") {
				d.BudgetMs = int(budget.Milliseconds())
			}
			if cmd.Flags().Changed("broadcast") {
				d.BroadcastAddress = target
			}
			if err := options.Config.Validate(); err != nil {
				return err
			}

			svc, err := seclink.NewDiscovery(options)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			svc.OnDiscovered(func(ep protocol.DiscoveredEndpoint) {
				fmt.Fprintf(out, "found %-24s %s\n", ep.Name, ep.Address)
			})
			svc.OnError(func(e *protocol.Error) {
				fmt.Fprintf(cmd.ErrOrStderr(), "discovery: %v\n", e)
			})

			var found []protocol.DiscoveredEndpoint
			svc.OnFinish(func(eps []protocol.DiscoveredEndpoint) {
				found = eps
			})

			fmt.Fprintf(out, "Discovering on port %d for %s...\n", d.Port, d.Budget())
			if err := svc.StartDiscovering(); err != nil {
				return err
			}

			finished := make(chan struct{})
			go func() {
				svc.Wait()
				close(finished)
			}()
			select {
			case <-finished:
			case <-ctx.Done():
				svc.CancelDiscovering()
				<-finished
			}

			fmt.Fprintf(out, "%d server(s) found\n", len(found))
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Discovery port of the servers")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Client name sent in the request")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Timeout of a single receive attempt")
	cmd.Flags().DurationVar(&budget, "budget", 0, "Total discovery time")
	cmd.Flags().StringVar(&target, "broadcast", "", "Broadcast address to send the request to")

	return cmd
}
