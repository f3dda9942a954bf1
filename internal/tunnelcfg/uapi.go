package tunnelcfg

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// UAPI renders the configuration as a wireguard-go IpcSet body. Keys are hex
// encoded as the UAPI requires; peers and their allowed IPs replace whatever
// the device held before, so the same body serves start and reconfigure.
func (c *TunnelConfiguration) UAPI() string {
	var b strings.Builder

	fmt.Fprintf(&b, "private_key=%s\n", hex.EncodeToString(c.Interface.PrivateKey[:]))
	if c.Interface.ListenPort > 0 {
		fmt.Fprintf(&b, "listen_port=%d\n", c.Interface.ListenPort)
	}
	b.WriteString("replace_peers=true\n")

	for _, peer := range c.Peers {
		fmt.Fprintf(&b, "public_key=%s\n", hex.EncodeToString(peer.PublicKey[:]))
		if ep := peer.EndpointString(); ep != "" {
			fmt.Fprintf(&b, "endpoint=%s\n", ep)
		}
		if peer.PersistentKeepalive > 0 {
			fmt.Fprintf(&b, "persistent_keepalive_interval=%d\n", peer.PersistentKeepalive)
		}
		b.WriteString("replace_allowed_ips=true\n")
		for _, prefix := range peer.AllowedIPs {
			fmt.Fprintf(&b, "allowed_ip=%s\n", prefix.Masked().String())
		}
	}

	return b.String()
}
