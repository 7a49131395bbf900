package cmd

import (
	"context"

	"firestige.xyz/busctl/internal/config"
	"firestige.xyz/busctl/internal/protocol/inspect"
	"firestige.xyz/busctl/internal/protocol/rtb"
	"firestige.xyz/busctl/internal/session"
	"firestige.xyz/busctl/internal/transport"
	"firestige.xyz/busctl/internal/transport/serial"
)

// TableClient retrieves the routing table.
type TableClient interface {
	RoutingTable(ctx context.Context) (*rtb.Table, error)
}

// InspectClient starts an inspect stream.
type InspectClient interface {
	Inspect(ctx context.Context, handler session.Handler) (*session.InspectSession, inspect.Message, error)
}

// PortFinder probes ports for a module type.
type PortFinder interface {
	Find(ctx context.Context, ports []string, moduleType string) []string
}

var (
	// openLink builds the transport for a port; tests swap it for a
	// simulated link.
	openLink = func(name string, cfg config.SerialConfig) (transport.Transport, error) {
		return serial.New(name, cfg)
	}

	// listPorts enumerates the host's serial ports.
	listPorts = serial.List
)
