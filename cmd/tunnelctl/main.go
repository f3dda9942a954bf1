// tunnelctl runs the tunnel daemon and controls it over the local API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/user/vpn-tunnel/internal/api"
	"github.com/user/vpn-tunnel/internal/config"
	"github.com/user/vpn-tunnel/internal/controller"
)

const usage = `usage: tunnelctl [-config path] <command> [flags]

commands:
  daemon              run the tunnel daemon
  up [flags]          connect (or switch servers with -switch)
  down                disconnect and turn always-on off
  status              show the tunnel status
  always-on [on|off]  show or change the always-on setting
  genkey              print a new private key and its public key
`

func main() {
	global := flag.NewFlagSet("tunnelctl", flag.ExitOnError)
	configPath := global.String("config", "", "configuration file (default: platform location)")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) == 0 {
		global.Usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "daemon":
		err = runDaemon(*configPath, args[1:])
	case "up":
		err = runUp(*configPath, args[1:])
	case "down":
		err = withClient(*configPath, func(ctx context.Context, c *api.Client) error {
			return c.Disconnect(ctx)
		})
	case "status":
		err = withClient(*configPath, printStatus)
	case "always-on":
		err = runAlwaysOn(*configPath, args[1:])
	case "genkey":
		err = genKey()
	default:
		global.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "tunnelctl: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	return config.NewManager(path).Load()
}

func withClient(configPath string, fn func(context.Context, *api.Client) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer cancel()
	return fn(ctx, api.NewClient(cfg.API.Listen))
}

func runUp(configPath string, args []string) error {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("up", flag.ExitOnError)
	host := fs.String("host", cfg.Server.Host, "server IP address")
	port := fs.Int("port", cfg.Server.Port, "server UDP port")
	key := fs.String("key", cfg.Server.PublicKey, "server public key")
	dns := fs.String("dns", cfg.Server.DNS, "DNS server inside the tunnel")
	secondary := fs.String("secondary-gateway", cfg.Server.SecondaryGateway, "secondary gateway, used as a second DNS server")
	allowed := fs.String("allowed", strings.Join(cfg.Server.AllowedIPs, ","), "comma separated allowed ranges (default: everything)")
	switching := fs.Bool("switch", false, "reconfigure the running tunnel in place")
	alwaysOn := fs.Bool("always-on", true, "reconnect automatically on network changes")
	save := fs.Bool("save", false, "store these server settings as the default")
	fs.Parse(args)

	server := config.Server{
		PublicKey:        *key,
		Host:             *host,
		Port:             *port,
		DNS:              *dns,
		SecondaryGateway: *secondary,
	}
	if *allowed != "" {
		server.AllowedIPs = strings.Split(*allowed, ",")
	}
	if server.Host == "" {
		return fmt.Errorf("no server: pass -host or set server.host in %s", mgr.Path())
	}
	if err := server.Validate(); err != nil {
		return err
	}
	if *save {
		if _, err := mgr.Update(func(c *config.Config) { c.Server = server }); err != nil {
			return fmt.Errorf("failed to save server: %w", err)
		}
	}
	ranges, err := server.Ranges()
	if err != nil {
		return err
	}

	req := api.ConnectRequest{
		DNS:              server.DNS,
		SecondaryGateway: server.SecondaryGateway,
		ServerPublicKey:  server.PublicKey,
		ServerHost:       server.Host,
		ServerPort:       server.Port,
		AllowedRanges:    ranges,
		Reason:           controller.ReasonNormal,
		EnableAlwaysOn:   *alwaysOn,
	}
	if *switching {
		req.Reason = controller.ReasonSwitching
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer cancel()
	return api.NewClient(cfg.API.Listen).Connect(ctx, req)
}

func printStatus(ctx context.Context, c *api.Client) error {
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("phase:          %s\n", st.Phase)
	fmt.Printf("always-on:      %v\n", st.AlwaysOn)
	if st.ConnectedSince != nil {
		fmt.Printf("connected for:  %s\n", time.Since(*st.ConnectedSince).Round(time.Second))
	}
	if st.Gateway != "" {
		fmt.Printf("gateway:        %s\n", st.Gateway)
		fmt.Printf("local address:  %s\n", st.LocalAddress)
	}
	if st.LastHandshake != nil {
		fmt.Printf("last handshake: %s ago\n", time.Since(*st.LastHandshake).Round(time.Second))
		fmt.Printf("transfer:       %d B received, %d B sent\n", st.RxBytes, st.TxBytes)
	}
	return nil
}

func runAlwaysOn(configPath string, args []string) error {
	return withClient(configPath, func(ctx context.Context, c *api.Client) error {
		var (
			state api.AlwaysOn
			err   error
		)
		switch {
		case len(args) == 0 || args[0] == "show":
			state, err = c.AlwaysOn(ctx)
		case args[0] == "on":
			state, err = c.SetAlwaysOn(ctx, true)
		case args[0] == "off":
			state, err = c.SetAlwaysOn(ctx, false)
		default:
			return fmt.Errorf("always-on: expected on, off or show, got %q", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Printf("always-on: %v (rule present: %v)\n", state.Enabled, state.HasRules)
		return nil
	})
}

func genKey() error {
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return err
	}
	fmt.Printf("private: %s\npublic:  %s\n", key, key.PublicKey())
	return nil
}
