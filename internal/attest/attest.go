// Package attest owns the oracle signing key and builds the attestation
// message the on-chain contract verifies.
package attest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ed25519SchemeFlag prefixes the public key when deriving a Sui address.
const ed25519SchemeFlag = 0x00

// Signer wraps a single long-lived ed25519 key.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner builds a signer from a 32-byte seed.
func NewSigner(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Generate creates a signer with a fresh random seed.
func Generate() (*Signer, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("reading entropy: %w", err)
	}
	return NewSigner(seed)
}

// LoadOrCreate reads the raw seed at keyPath, generating and persisting one
// if the file does not exist. The public key is then written to pubPath as
// a hex line followed by a comma separated byte list.
func LoadOrCreate(logger *slog.Logger, keyPath, pubPath string) (*Signer, error) {
	s, err := load(keyPath)
	switch {
	case err == nil:
		logger.Info("loaded existing signing key", "path", keyPath)
	case errors.Is(err, fs.ErrNotExist):
		if s, err = Generate(); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(keyPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating key dir: %w", err)
		}
		if err := os.WriteFile(keyPath, s.Seed(), 0o600); err != nil {
			return nil, fmt.Errorf("writing signing key: %w", err)
		}
		logger.Info("generated and saved new signing key", "path", keyPath)
	default:
		return nil, err
	}

	if pubPath != "" {
		if err := os.WriteFile(pubPath, []byte(s.describe()), 0o644); err != nil {
			return nil, fmt.Errorf("writing public key file: %w", err)
		}
	}
	logger.Info("oracle public key", "hex", s.PublicKeyHex(), "address", s.Address())
	return s, nil
}

func load(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch len(data) {
	case ed25519.SeedSize:
		return NewSigner(data)
	case ed25519.PrivateKeySize:
		return NewSigner(data[:ed25519.SeedSize])
	default:
		return nil, fmt.Errorf("signing key %q: unexpected length %d", path, len(data))
	}
}

// Seed returns the 32-byte private seed.
func (s *Signer) Seed() []byte { return s.priv.Seed() }

// Sign signs message with the oracle key.
func (s *Signer) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, message), nil
}

// Verify reports whether sig is a valid oracle signature over message.
func (s *Signer) Verify(message, sig []byte) bool {
	return ed25519.Verify(s.pub, message, sig)
}

func (s *Signer) PublicKeyBytes() []byte {
	return append([]byte(nil), s.pub...)
}

func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.pub)
}

// Address is the Sui address of the oracle key:
// blake2b-256(flag || pubkey), hex with 0x prefix.
func (s *Signer) Address() string {
	h := blake2b.Sum256(append([]byte{ed25519SchemeFlag}, s.pub...))
	return "0x" + hex.EncodeToString(h[:])
}

func (s *Signer) describe() string {
	parts := make([]string, len(s.pub))
	for i, b := range s.pub {
		parts[i] = strconv.Itoa(int(b))
	}
	return s.PublicKeyHex() + "\n" + strings.Join(parts, ",")
}

// Pad32 decodes a 0x-prefixed hex value into a 32-byte big-endian array,
// left padded with zeros.
func Pad32(value string) ([]byte, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.TrimPrefix(v, "0x")
	if len(v) > 64 {
		return nil, fmt.Errorf("hex value %q longer than 32 bytes", value)
	}
	out, err := hex.DecodeString(strings.Repeat("0", 64-len(v)) + v)
	if err != nil {
		return nil, fmt.Errorf("decoding hex value %q: %w", value, err)
	}
	return out, nil
}

// Message is the signed payload: pad32(gameID) || pad32(winner) || blobID.
func Message(gameID, winner, blobID string) ([]byte, error) {
	gid, err := Pad32(gameID)
	if err != nil {
		return nil, fmt.Errorf("encoding game id: %w", err)
	}
	win, err := Pad32(winner)
	if err != nil {
		return nil, fmt.Errorf("encoding winner: %w", err)
	}
	msg := make([]byte, 0, len(gid)+len(win)+len(blobID))
	msg = append(msg, gid...)
	msg = append(msg, win...)
	return append(msg, blobID...), nil
}
