package health

import (
	"net/netip"

	"github.com/mlrus/openr/wire"
)

// onPingDatagram and onCommandDatagram hand inbound datagrams to the
// checker's owning goroutine, the same read-loop-then-dispatch pattern
// store.Node uses for its own sockets.
func (c *Checker) onPingDatagram(from netip.AddrPort, payload []byte) {
	c.Dispatch(func(ch *Checker) error { return ch.handlePingDatagram(from, payload) })
}

func (c *Checker) handlePingDatagram(from netip.AddrPort, payload []byte) error {
	env, err := wire.DecodeEnvelope(payload)
	if err != nil {
		c.Log.Warn("health: malformed ping datagram", "error", err)
		return nil
	}
	if env.Kind != wire.KindHealthMessage {
		c.Log.Warn("health: unexpected kind on ping socket", "kind", env.Kind)
		return nil
	}
	var msg wire.HealthCheckerMessage
	if err := wire.Decode(env.Payload, &msg); err != nil {
		c.Log.Warn("health: decode ping message failed", "error", err)
		return nil
	}

	info := c.infoFor(msg.FromNodeName)
	switch msg.Type {
	case wire.HealthPing:
		info.LastAckToNode = msg.SeqNum
		ack, err := wire.EncodeEnvelope(wire.KindHealthMessage, wire.HealthCheckerMessage{
			FromNodeName: c.myNodeName,
			Type:         wire.HealthAck,
			SeqNum:       msg.SeqNum,
		})
		if err != nil {
			return err
		}
		if err := c.lst.ping.SendTo(from, ack); err != nil {
			c.Log.Warn("health: ack send failed", "to", msg.FromNodeName, "error", err)
		}
	case wire.HealthAck:
		info.LastAckFromNode = msg.SeqNum
		c.Metrics.SetAckFrom(msg.FromNodeName, float64(msg.SeqNum))
		c.Metrics.SetSeqNumDiff(msg.FromNodeName, float64(info.LastValSent-info.LastAckFromNode))
	default:
		c.Log.Warn("health: unknown message type", "from", msg.FromNodeName)
	}
	return nil
}

// pingAllTargets fires one datagram per configured target per tick; there
// is no retry beyond the next tick, so loss only shows up as a growing
// outstanding-ping gauge (§4.5).
func (c *Checker) pingAllTargets() error {
	for name := range c.targets {
		info, ok := c.nodeInfo[name]
		if !ok || !info.HasIpAddress {
			continue
		}
		if owner, found := c.prefixIndex.Lookup(info.IpAddress); found && owner != name {
			c.Log.Warn("health: skipping ping, address reassigned", "target", name, "address", info.IpAddress, "now_owned_by", owner)
			continue
		}
		info.LastValSent++
		msg := wire.HealthCheckerMessage{FromNodeName: c.myNodeName, Type: wire.HealthPing, SeqNum: info.LastValSent}
		out, err := wire.EncodeEnvelope(wire.KindHealthMessage, msg)
		if err != nil {
			c.Log.Error("health: encode ping failed", "error", err)
			continue
		}
		addr := netip.AddrPortFrom(info.IpAddress, c.Cfg.PingPort())
		if err := c.lst.ping.SendTo(addr, out); err != nil {
			c.Log.Warn("health: ping send failed", "to", name, "error", err)
			continue
		}
		c.Metrics.SetPingTo(name)
	}
	return nil
}

func (c *Checker) onCommandDatagram(from netip.AddrPort, payload []byte) {
	c.Dispatch(func(ch *Checker) error { return ch.handleCommandDatagram(from, payload) })
}

func (c *Checker) handleCommandDatagram(from netip.AddrPort, payload []byte) error {
	env, err := wire.DecodeEnvelope(payload)
	if err != nil {
		c.Log.Warn("health: malformed command datagram", "error", err)
		return nil
	}
	if env.Kind != wire.KindHealthRequest {
		c.Log.Warn("health: unexpected command kind", "kind", env.Kind)
		return nil
	}
	var req wire.HealthCheckerRequest
	if err := wire.Decode(env.Payload, &req); err != nil {
		c.Log.Warn("health: decode command failed", "error", err)
		return nil
	}
	switch req.Cmd {
	case wire.HealthPeek:
		out, err := wire.EncodeEnvelope(wire.KindHealthRequest, c.peek())
		if err != nil {
			return err
		}
		if c.lst.cmd != nil {
			if err := c.lst.cmd.SendTo(from, out); err != nil {
				c.Log.Warn("health: peek reply send failed", "error", err)
			}
		}
	default:
		c.Log.Warn("health: unknown health command", "cmd", req.Cmd)
	}
	return nil
}

// Peek returns the current per-node counters, exposed both to the wire
// PEEK command and to in-process callers such as tests (§4.5).
func (c *Checker) Peek() wire.HealthCheckerPeekReply {
	return c.peek()
}

func (c *Checker) peek() wire.HealthCheckerPeekReply {
	nodes := make(map[string]wire.HealthNodeInfo)
	for name, info := range c.nodeInfo {
		if info.LastValSent == 0 && info.LastAckFromNode == 0 && info.LastAckToNode == 0 {
			continue
		}
		ip := ""
		if info.HasIpAddress {
			ip = info.IpAddress.String()
		}
		nodes[name] = wire.HealthNodeInfo{
			Neighbors:       info.Neighbors,
			IpAddress:       ip,
			LastValSent:     info.LastValSent,
			LastAckFromNode: info.LastAckFromNode,
			LastAckToNode:   info.LastAckToNode,
		}
	}
	return wire.HealthCheckerPeekReply{Nodes: nodes}
}
