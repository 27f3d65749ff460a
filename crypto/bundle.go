package crypto

import (
	"crypto"
	"crypto/rand"
	"errors"
	"fmt"

	"go.step.sm/crypto/x25519"
	"golang.org/x/crypto/chacha20poly1305"
)

// SignBundle prepends an X25519 signature to data.
func SignBundle(data []byte, key PrivateKey) ([]byte, error) {
	sig, err := x25519.PrivateKey(key[:]).Sign(rand.Reader, data, crypto.Hash(0))
	if err != nil {
		return nil, fmt.Errorf("sign bundle: %w", err)
	}
	return append(sig, data...), nil
}

// VerifyBundle checks the signature produced by SignBundle and returns the
// plaintext that was signed.
func VerifyBundle(data []byte, key PublicKey) ([]byte, error) {
	if len(data) < x25519.SignatureSize {
		return nil, errors.New("invalid signature: too short")
	}
	sig := data[:x25519.SignatureSize]
	plainText := data[x25519.SignatureSize:]
	if !x25519.Verify(key[:], plainText, sig) {
		return nil, errors.New("invalid signature")
	}
	return plainText, nil
}

// SealBundle encrypts data under a shared key using XChaCha20-Poly1305.
func SealBundle(data []byte, sharedKey []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(sharedKey)
	if err != nil {
		return nil, fmt.Errorf("seal bundle: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("seal bundle: %w", err)
	}
	cipherText := aead.Seal(nil, nonce, data, nil)
	return append(nonce, cipherText...), nil
}

// OpenBundle reverses SealBundle.
func OpenBundle(data []byte, sharedKey []byte) ([]byte, error) {
	if len(data) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("invalid bundle, too small")
	}
	aead, err := chacha20poly1305.NewX(sharedKey)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	nonce := data[:chacha20poly1305.NonceSizeX]
	cipherText := data[chacha20poly1305.NonceSizeX:]
	plain, err := aead.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	return plain, nil
}

// Channel seals and opens arbitrary payloads for a per-channel optional
// authenticated-encryption layer (§6), matching the teacher's "bundle"
// scheme in state/distribution.go: each side seals under its own public
// key, so opening a remote message requires already trusting that peer's
// public key out of band.
type Channel struct {
	local  Keypair
	remote PublicKey
}

func NewChannel(local Keypair, remote PublicKey) *Channel {
	return &Channel{local: local, remote: remote}
}

// Seal signs with the local private key, then encrypts under the local
// public key as shared secret: the receiver, who already trusts this node's
// public key out of band, derives the same secret to open it. This mirrors
// state/distribution.go's BundleConfig/UnbundleConfig scheme exactly; it is
// not a Diffie-Hellman exchange, and offers privacy only insofar as the
// public key is not widely known.
func (c *Channel) Seal(payload []byte) ([]byte, error) {
	signed, err := SignBundle(payload, c.local.Private)
	if err != nil {
		return nil, err
	}
	return SealBundle(signed, c.local.Public[:])
}

// Open decrypts a message sealed by the remote peer under its own public
// key, then verifies the signature against that same public key.
func (c *Channel) Open(data []byte) ([]byte, error) {
	signed, err := OpenBundle(data, c.remote[:])
	if err != nil {
		return nil, err
	}
	return VerifyBundle(signed, c.remote)
}
