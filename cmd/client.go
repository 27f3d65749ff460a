package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mlrus/openr/config"
	"github.com/mlrus/openr/store"
	"github.com/mlrus/openr/wire"
)

const requestTimeout = 5 * time.Second

func loadConfigForClient() (*config.NodeConfig, error) {
	return config.Load(configPath)
}

// storeRequest sends a command to the KvStore's local command socket,
// wrapped in an unencrypted Transit the same way every other KvStore
// datagram is shaped (§6) — the CLI is a trusted local caller, never a
// fabric peer, so it never seals the envelope.
func storeRequest(addr, kind string, req, reply any) error {
	env, err := wire.EncodeEnvelope(kind, req)
	if err != nil {
		return err
	}
	out, err := wire.Encode(wire.Transit{From: "cli", Encrypted: false, Payload: env})
	if err != nil {
		return err
	}
	resp, err := sendAndWait(addr, out)
	if err != nil {
		return err
	}
	var transit wire.Transit
	if err := wire.Decode(resp, &transit); err != nil {
		return err
	}
	replyEnv, err := wire.DecodeEnvelope(transit.Payload)
	if err != nil {
		return err
	}
	return wire.Decode(replyEnv.Payload, reply)
}

// healthRequest sends a command to the health checker's local command
// socket, which unlike the KvStore's never wraps datagrams in a Transit
// (§4.5: the ping/peek protocol carries no authentication at all).
func healthRequest(addr, kind string, req, reply any) error {
	out, err := wire.EncodeEnvelope(kind, req)
	if err != nil {
		return err
	}
	resp, err := sendAndWait(addr, out)
	if err != nil {
		return err
	}
	env, err := wire.DecodeEnvelope(resp)
	if err != nil {
		return err
	}
	return wire.Decode(env.Payload, reply)
}

func sendAndWait(addr string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp, err := store.NewUDPTransport().Request(ctx, addr, payload)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", addr, err)
	}
	return resp, nil
}
