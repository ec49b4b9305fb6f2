package bridge

import (
	"fmt"

	"github.com/gaspardpetit/editorbridge/internal/config"
	"github.com/gaspardpetit/editorbridge/internal/endpoint"
	"github.com/gaspardpetit/editorbridge/internal/executor"
	"github.com/gaspardpetit/editorbridge/internal/ops"
	"github.com/gaspardpetit/editorbridge/internal/reconnect"
	"github.com/gaspardpetit/editorbridge/internal/store"
	"github.com/gaspardpetit/editorbridge/internal/transport"
)

// OptionsFromConfig assembles bridge options from cfg. The resolver persists
// through st and rewrites the peer config files when the port moves.
func OptionsFromConfig(cfg config.BridgeConfig, st store.Store, exec executor.Executor) (Options, error) {
	scan, err := config.ParsePortRange(cfg.ScanPorts)
	if err != nil {
		return Options{}, fmt.Errorf("scan ports: %w", err)
	}
	peerPorts, err := config.ParsePortRange(cfg.PeerPorts)
	if err != nil {
		return Options{}, fmt.Errorf("peer ports: %w", err)
	}

	resolver := endpoint.NewResolver(endpoint.Options{
		Host:         cfg.ServerHost,
		Port:         cfg.ServerPort,
		Secure:       cfg.Secure,
		Path:         cfg.ServerPath,
		ScanPorts:    scan,
		ProbeTimeout: cfg.ProbeTimeout,
	}, st)
	if len(cfg.PeerConfigFiles) > 0 {
		peers := endpoint.NewPeerConfig(cfg.PeerConfigFiles, peerPorts)
		resolver.OnPortChanged(peers.OnPortChanged)
	}

	registry := ops.NewRegistry()
	registry.RegisterAll(cfg.Aliases)

	return Options{
		Resolver: resolver,
		Registry: registry,
		Executor: exec,
		Transport: transport.Options{
			ClientType:     cfg.ClientType,
			ConnectTimeout: cfg.ConnectTimeout,
		},
		Intervals: reconnect.Intervals{
			Dormant:       cfg.DormantInterval,
			LightProbe:    cfg.ProbeInterval,
			FullReconnect: cfg.FullReconnectInterval,
			Backoff:       cfg.BackoffInterval,
		},
		MaxAttempts:       cfg.MaxReconnectAttempts,
		TickInterval:      cfg.TickInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ConnectTimeout:    cfg.ConnectTimeout,
		OperationTimeout:  cfg.Executor.Timeout,
		FailurePrefixes:   cfg.FailurePrefixes,
	}, nil
}
