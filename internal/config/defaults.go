package config

import "time"

// Default configuration values.
const (
	DefaultInterface        = "eth0"
	DefaultLinkType         = LinkTypeEthernet
	DefaultLogLevel         = "info"
	DefaultMetricsListen    = "127.0.0.1:9567"
	DefaultRequestBroadcast = false
	DefaultMTU              = 1500
	DefaultBackoffInitial   = 4 * time.Second
	DefaultBackoffMax       = 64 * time.Second
)

// Recognized link_type values, selecting the htype/hlen/bhaddr handling a
// Connection needs (RFC 2131 hardware-type quirks — InfiniBand forces
// broadcast and suppresses chaddr).
const (
	LinkTypeEthernet   = "ethernet"
	LinkTypeInfiniBand = "infiniband"
)
