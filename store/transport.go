package store

import (
	"context"
	"net/netip"
)

// Transport abstracts the datagram-oriented request/reply and
// publish/subscribe fabric assumed by §6, so the KvStore event loop never
// depends on socket details. udpTransport (udp_transport.go) is the sole
// implementation; tests use it too, over loopback sockets.
type Transport interface {
	// Listen binds addr and delivers every inbound datagram to onRecv on a
	// background goroutine, one per datagram, mirroring the
	// read-then-dispatch shape of the teacher's probe listener. onRecv must
	// hand any state mutation back to the owning loop via Dispatch; it does
	// not itself run on the owning loop.
	Listen(addr string, onRecv func(from netip.AddrPort, payload []byte)) (Listener, error)
	// Request sends payload to addr and blocks for a single reply datagram,
	// or until ctx is done.
	Request(ctx context.Context, addr string, payload []byte) ([]byte, error)
}

// Listener is a bound socket a Node can reply on and eventually close.
type Listener interface {
	SendTo(addr netip.AddrPort, payload []byte) error
	Addr() netip.AddrPort
	Close() error
}
