package datapath

// Link is the link-layer collaborator injected into the handler: the
// component that actually owns sockets/pcap/tun devices and knows how to
// put a frame on the wire. Receiving frames and calling HandleFrame with
// them is the caller's responsibility (mirrors RecvFrame's "delivered
// serially to the handler" contract) — the handler only ever originates
// outbound sends through SendFrame.
type Link interface {
	// SendFrame transmits frame out the named interface. May block; never
	// cancelled by the handler. A non-nil error is a TransientSendError:
	// the handler does not synthesize any ICMP about its own send failures.
	SendFrame(frame []byte, outIface string) error
}
