// Package ondemand brings the tunnel back when the network changes and the
// always-on rule is set.
package ondemand

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/user/vpn-tunnel/internal/controller"
	"github.com/user/vpn-tunnel/internal/logger"
)

// Tunnel is the part of the controller the watcher drives.
type Tunnel interface {
	GetAlwaysOn() bool
	Phase() controller.Phase
	Resume(onFailure func(error))
}

// Source produces one value per network change until ctx is done.
type Source func(ctx context.Context) (<-chan struct{}, error)

// Options configure a Watcher.
type Options struct {
	// MinInterval is the minimum time between two reconnect attempts.
	MinInterval time.Duration
	// PollInterval is used by the polling source.
	PollInterval time.Duration
	// Source defaults to the platform source.
	Source Source
}

// Watcher reacts to network changes.
type Watcher struct {
	tunnel  Tunnel
	limiter *rate.Limiter
	source  Source
}

// New creates a watcher for tunnel.
func New(tunnel Tunnel, opts Options) *Watcher {
	if opts.MinInterval <= 0 {
		opts.MinInterval = 2 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Source == nil {
		opts.Source = platformSource(opts.PollInterval)
	}
	return &Watcher{
		tunnel:  tunnel,
		limiter: rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		source:  opts.Source,
	}
}

// Run watches for changes until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	events, err := w.source(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch network changes: %w", err)
	}
	logger.Info("Watching network changes for always-on")

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-events:
			if !ok {
				return nil
			}
			w.HandleNetworkChange()
		}
	}
}

// HandleNetworkChange resumes the tunnel if always-on is set and the tunnel
// is down. It reports whether a resume was requested.
func (w *Watcher) HandleNetworkChange() bool {
	if !w.tunnel.GetAlwaysOn() {
		return false
	}
	if phase := w.tunnel.Phase(); phase != controller.PhaseDisconnected {
		logger.Debug("Network changed, tunnel is %s", phase)
		return false
	}
	if !w.limiter.Allow() {
		logger.Debug("Network changed, reconnect throttled")
		return false
	}

	logger.Info("Network changed, resuming always-on tunnel")
	w.tunnel.Resume(func(err error) {
		logger.Warning("Always-on reconnect failed: %v", err)
	})
	return true
}

// PollSource compares the interface list every interval and reports when it
// changed.
func PollSource(interval time.Duration) Source {
	return pollSource(interval, interfaceFingerprint)
}

func pollSource(interval time.Duration, fingerprint func() (string, error)) Source {
	return func(ctx context.Context) (<-chan struct{}, error) {
		last, err := fingerprint()
		if err != nil {
			return nil, err
		}
		ch := make(chan struct{}, 1)
		logger.SafeGo("network poll", func() {
			defer close(ch)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
				current, err := fingerprint()
				if err != nil || current == last {
					continue
				}
				last = current
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		})
		return ch, nil
	}
}

func interfaceFingerprint() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	var parts []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		names := make([]string, 0, len(addrs))
		for _, a := range addrs {
			names = append(names, a.String())
		}
		sort.Strings(names)
		parts = append(parts, iface.Name+"="+strings.Join(names, ","))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";"), nil
}
