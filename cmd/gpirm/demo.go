package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/gpirm/pkg/bootcfg"
	"github.com/cuemby/gpirm/pkg/rm"
	"github.com/cuemby/gpirm/pkg/sampleserver"
	"github.com/cuemby/gpirm/pkg/work"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Boot the RM, register the bundled container resource server, and dump the model",
	Long: `demo exercises the async work protocol and model extraction end to end
against in-process PDs: it boots the RM, starts the bundled container
resource server (pkg/sampleserver), has a client PD allocate one container
resource, prints the extracted model graph, then terminates the client to
show the resource being released.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		socketPath, _ := cmd.Flags().GetString("containerd-socket")
		imageRef, _ := cmd.Flags().GetString("image")

		info := bootcfg.Default()
		info.UntypedRegions = []bootcfg.UntypedRegion{{SizeBits: 20}}

		reactor, err := rm.Boot(info)
		if err != nil {
			return fmt.Errorf("boot resource manager: %w", err)
		}

		serverPDID, _, err := reactor.PD.Allocate(reactor.RootPDID, "sample-server", 0)
		if err != nil {
			return fmt.Errorf("allocate server PD: %w", err)
		}
		server, err := sampleserver.Start(reactor, serverPDID, socketPath)
		if err != nil {
			return fmt.Errorf("start sample resource server: %w", err)
		}
		if err := server.Run(); err != nil {
			return fmt.Errorf("run sample resource server: %w", err)
		}
		defer server.Stop()

		clientPDID, _, err := reactor.PD.Allocate(reactor.RootPDID, "demo-client", 0)
		if err != nil {
			return fmt.Errorf("allocate client PD: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		objectID, b, err := server.Allocate(ctx, clientPDID, imageRef, nil)
		if err != nil {
			return fmt.Errorf("allocate container resource: %w", err)
		}
		fmt.Printf("allocated container resource %d (badge %s) to PD %d\n", objectID, b, clientPDID)

		graphCh := make(chan *work.Graph, 1)
		if err := reactor.Extract.Dump(reactor.RootPDID, func(g *work.Graph) { graphCh <- g }); err != nil {
			return fmt.Errorf("dump model: %w", err)
		}
		select {
		case g := <-graphCh:
			out, err := json.MarshalIndent(g, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal model: %w", err)
			}
			fmt.Println(string(out))
		case <-time.After(5 * time.Second):
			return fmt.Errorf("model extraction did not complete")
		}

		done := make(chan struct{})
		if err := reactor.Cascade.Terminate(clientPDID, true, func() { close(done) }); err != nil {
			return fmt.Errorf("terminate client PD: %w", err)
		}
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			return fmt.Errorf("client PD termination did not complete")
		}
		fmt.Println("client PD terminated; container resource released")

		return nil
	},
}

func init() {
	demoCmd.Flags().String("containerd-socket", "", "containerd socket (empty runs describe-only, no daemon required)")
	demoCmd.Flags().String("image", "docker.io/library/alpine:latest", "OCI image ref to describe in the demo container's spec")
}
