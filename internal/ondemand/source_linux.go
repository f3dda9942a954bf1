//go:build linux

package ondemand

import (
	"context"
	"time"

	"github.com/vishvananda/netlink"

	"github.com/user/vpn-tunnel/internal/logger"
)

// platformSource listens for link and address changes over netlink, falling
// back to polling when the subscription cannot be opened.
func platformSource(pollInterval time.Duration) Source {
	return func(ctx context.Context) (<-chan struct{}, error) {
		links := make(chan netlink.LinkUpdate, 16)
		addrs := make(chan netlink.AddrUpdate, 16)
		done := make(chan struct{})

		if err := netlink.LinkSubscribe(links, done); err != nil {
			close(done)
			logger.Warning("Netlink link subscription failed, polling instead: %v", err)
			return PollSource(pollInterval)(ctx)
		}
		if err := netlink.AddrSubscribe(addrs, done); err != nil {
			close(done)
			logger.Warning("Netlink address subscription failed, polling instead: %v", err)
			return PollSource(pollInterval)(ctx)
		}

		ch := make(chan struct{}, 1)
		logger.SafeGo("netlink watch", func() {
			defer close(ch)
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-links:
					if !ok {
						return
					}
				case _, ok := <-addrs:
					if !ok {
						return
					}
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		})
		return ch, nil
	}
}
