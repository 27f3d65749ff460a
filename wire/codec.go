package wire

import (
	"fmt"

	"github.com/shamaton/msgpack/v2"
)

// Encode serializes a wire message. Kept as a thin wrapper so the rest of
// the module never imports the msgpack package directly (Design Note, §9:
// "keep the wire format decoupled from the in-memory representation").
func Encode(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return data, nil
}

// Decode deserializes bytes produced by Encode into v, which must be a
// pointer.
func Decode(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// EncodeEnvelope wraps msg's encoding in an Envelope tagged with kind, so a
// single datagram socket can multiplex the command surface (§4.3, §4.5).
func EncodeEnvelope(kind string, msg any) ([]byte, error) {
	payload, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	return Encode(Envelope{Kind: kind, Payload: payload})
}

// DecodeEnvelope unwraps an Envelope, returning its kind and raw payload for
// the caller to decode into the message type that kind implies.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := Decode(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
