// Package crypto provides the X25519 keypairs and authenticated-encryption
// bundling used by optionally-encrypted channels (§6).
package crypto

import (
	"encoding/base64"
	"fmt"
	"os"

	"go.step.sm/crypto/x25519"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/mlrus/openr/wire"
)

const keySize = 32

type PrivateKey [keySize]byte
type PublicKey [keySize]byte

// GenerateKey produces a fresh X25519 private key.
func GenerateKey() (PrivateKey, error) {
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return PrivateKey{}, fmt.Errorf("generate key: %w", err)
	}
	return PrivateKey(key), nil
}

// Pubkey derives the public half of k.
func (k PrivateKey) Pubkey() (PublicKey, error) {
	pub, err := x25519.PrivateKey(k[:]).PublicKey()
	if err != nil {
		return PublicKey{}, fmt.Errorf("derive public key: %w", err)
	}
	return PublicKey(pub), nil
}

func (k PrivateKey) MarshalText() ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(k[:])), nil
}

func (k *PrivateKey) UnmarshalText(text []byte) error {
	data, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(data) != keySize {
		return fmt.Errorf("private key must be %d bytes, got %d", keySize, len(data))
	}
	*k = PrivateKey(data)
	return nil
}

func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(k[:])), nil
}

func (k *PublicKey) UnmarshalText(text []byte) error {
	data, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(data) != keySize {
		return fmt.Errorf("public key must be %d bytes, got %d", keySize, len(data))
	}
	*k = PublicKey(data)
	return nil
}

// Keypair is a private/public pair, persisted as a wire.Keypair record.
type Keypair struct {
	Private PrivateKey
	Public  PublicKey
}

// NewKeypair generates a fresh keypair.
func NewKeypair() (Keypair, error) {
	priv, err := GenerateKey()
	if err != nil {
		return Keypair{}, err
	}
	pub, err := priv.Pubkey()
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{Private: priv, Public: pub}, nil
}

// SaveKeypair serializes kp as a wire.Keypair record to path.
func SaveKeypair(path string, kp Keypair) error {
	data, err := wire.Encode(wire.Keypair{
		PublicKey:  kp.Public[:],
		PrivateKey: kp.Private[:],
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadKeypair reads a keypair previously written by SaveKeypair. Loading
// from a missing file fails with a wrapped os.ErrNotExist (§6).
func LoadKeypair(path string) (Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Keypair{}, fmt.Errorf("keypair %s: %w", path, os.ErrNotExist)
		}
		return Keypair{}, err
	}
	var rec wire.Keypair
	if err := wire.Decode(data, &rec); err != nil {
		return Keypair{}, fmt.Errorf("keypair %s: %w", path, err)
	}
	if len(rec.PrivateKey) != keySize || len(rec.PublicKey) != keySize {
		return Keypair{}, fmt.Errorf("keypair %s: malformed key lengths", path)
	}
	var kp Keypair
	copy(kp.Private[:], rec.PrivateKey)
	copy(kp.Public[:], rec.PublicKey)
	return kp, nil
}
