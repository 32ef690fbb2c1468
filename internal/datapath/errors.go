package datapath

import "errors"

// These sentinels classify why HandleFrame returned non-nil, mirroring the
// Error kinds enumerated for the datapath. Most are informational — the
// handler has already emitted whatever ICMP diagnostic applies and the
// frame is simply dropped; callers are not expected to retry.
var (
	ErrMalformedFrame       = errors.New("datapath: malformed frame")
	ErrNoRoute              = errors.New("datapath: no route, net unreachable sent")
	ErrTTLExceeded          = errors.New("datapath: ttl exceeded")
	ErrUnsupportedLocalProto = errors.New("datapath: unsupported protocol addressed to router")
	ErrArpFailure           = errors.New("datapath: arp resolution failed")
	ErrNatMissExternal      = errors.New("datapath: no nat mapping for inbound external packet")
	ErrNatExhaustion        = errors.New("datapath: nat external port range exhausted")
)
