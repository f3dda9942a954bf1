package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"

	"github.com/user/vpn-tunnel/internal/api"
	"github.com/user/vpn-tunnel/internal/config"
	"github.com/user/vpn-tunnel/internal/controller"
	"github.com/user/vpn-tunnel/internal/elevate"
	"github.com/user/vpn-tunnel/internal/logger"
	"github.com/user/vpn-tunnel/internal/ondemand"
	"github.com/user/vpn-tunnel/internal/profile"
	"github.com/user/vpn-tunnel/internal/provider/wireguard"
)

func runDaemon(configPath string, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	relaunch := fs.Bool("elevate", false, "relaunch with root privileges when needed")
	fs.Parse(args)

	// TUN, routing and DNS need root.
	if err := elevate.Require("run daemon"); err != nil {
		if !*relaunch {
			return err
		}
		fmt.Println("Not running as root, requesting elevation...")
		return elevate.Relaunch(os.Args[1:])
	}

	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Log.Dir); err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer logger.Close()
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.Info("Tunnel daemon starting (config %s)", mgr.Path())

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	vault, err := profile.OpenVault(cfg.Vault.Backend, cfg.Vault.Service, cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("failed to open vault: %w", err)
	}

	key, err := cfg.Identity.Key()
	if err != nil {
		return err
	}

	provider := wireguard.New(wireguard.Options{
		InterfaceName: cfg.Interface.Name,
		MTU:           cfg.Interface.MTU,
		Metric:        cfg.Interface.Metric,
		Verbose:       cfg.Log.Level == "debug",
	})

	ctrl := controller.New(controller.Options{
		Store:       store,
		Vault:       vault,
		Session:     provider,
		SettleDelay: cfg.Monitor.SettleDelay(),
		TunnelName:  cfg.TunnelName,
		OnStateChange: func(connected bool) {
			if connected {
				logger.Connection("Tunnel verified: handshake completed")
			} else {
				logger.Connection("Tunnel disconnected")
			}
		},
	})
	defer ctrl.Close()

	ctrl.Initialize(controller.InitRequest{
		OwnerID:     cfg.OwnerID,
		PrivateKey:  key,
		LocalAddrV4: cfg.Identity.AddressV4,
		LocalAddrV6: cfg.Identity.AddressV6,
	}, func(state controller.ConnectionState, since time.Time) {
		if since.IsZero() {
			logger.Info("Controller initialized: %s", state)
			return
		}
		logger.Info("Controller initialized: %s since %s", state, since.Format(time.RFC3339))
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer cancel()

	if cfg.OnDemand.Enabled {
		watcher := ondemand.New(ctrl, ondemand.Options{
			MinInterval:  cfg.OnDemand.MinInterval(),
			PollInterval: cfg.OnDemand.PollInterval(),
		})
		logger.SafeGo("ondemand", func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("On-demand watcher stopped: %v", err)
			}
		})
	}

	serveErr := make(chan error, 1)
	server := api.NewServer(ctrl)
	logger.SafeGo("api", func() {
		serveErr <- server.Start(ctx, cfg.API.Listen)
	})

	select {
	case <-ctx.Done():
		logger.Info("Tunnel daemon shutting down")
	case err = <-serveErr:
		logger.Error("API server failed: %v", err)
		cancel()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if stopErr := provider.Stop(stopCtx); stopErr != nil {
		logger.Warning("Failed to stop tunnel: %v", stopErr)
	}
	return err
}

func openStore(cfg config.Store) (profile.Store, func(), error) {
	switch cfg.Backend {
	case config.StoreSQLite:
		s, err := profile.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open profile database: %w", err)
		}
		return s, func() { s.Close() }, nil
	default:
		return profile.NewYAMLStore(cfg.Path), func() {}, nil
	}
}
