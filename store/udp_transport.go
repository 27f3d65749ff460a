package store

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"
)

const defaultRequestTimeout = 5 * time.Second

// udpTransport is the concrete realization of Transport described in
// SPEC_FULL.md §1: "a datagram-oriented request/reply and publish/subscribe
// fabric" over UDP. The read loop mirrors
// impl/dp_udp_link.go's probeListener: block on ReadFromUDPAddrPort, then
// hand each datagram to its own goroutine so a slow handler never stalls
// the socket.
type udpTransport struct{}

func NewUDPTransport() Transport { return udpTransport{} }

type udpListener struct {
	conn *net.UDPConn
}

func (udpTransport) Listen(addr string, onRecv func(from netip.AddrPort, payload []byte)) (Listener, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	l := &udpListener{conn: conn}
	go l.serve(onRecv)
	return l, nil
}

func (l *udpListener) serve(onRecv func(from netip.AddrPort, payload []byte)) {
	buf := make([]byte, 65535)
	for {
		n, from, err := l.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		go onRecv(from, payload)
	}
}

func (l *udpListener) SendTo(addr netip.AddrPort, payload []byte) error {
	_, err := l.conn.WriteToUDPAddrPort(payload, addr)
	return err
}

func (l *udpListener) Addr() netip.AddrPort {
	return l.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (l *udpListener) Close() error {
	return l.conn.Close()
}

func (udpTransport) Request(ctx context.Context, addr string, payload []byte) ([]byte, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("send to %s: %w", addr, err)
	}
	buf := make([]byte, 65535)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("recv from %s: %w", addr, err)
	}
	return buf[:n], nil
}
