// Package receipt issues signed compilation receipts: an engine-key
// attestation binding a compiled contract, the arguments it was compiled
// with, and the root of the produced templates. Receipts let a caller
// prove later which engine produced a compilation and that the stored
// record was not altered.
package receipt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/22388o/sapio/pkg/canonical"
	"github.com/22388o/sapio/pkg/contract"
)

// Receipt attests one compilation. All hashes are canonical "sha256:"
// digests; the signature covers the canonical JSON form of the receipt
// with the signature field empty.
type Receipt struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Network      string    `json:"network"`
	ContractHash string    `json:"contract_hash"`
	ArgsHash     string    `json:"args_hash"`
	TemplateRoot string    `json:"template_root"`
	IssuedAt     time.Time `json:"issued_at"`
	PublicKey    string    `json:"public_key"`
	Signature    string    `json:"signature,omitempty"`
}

// Signer signs receipt payloads. Implementations may hold the key in
// memory or delegate to an HSM or KMS.
type Signer interface {
	Sign(data []byte) (string, error)
	PublicKey() string
}

// MemorySigner is an in-process ed25519 Signer.
type MemorySigner struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewMemorySigner generates a fresh random key.
func NewMemorySigner() (*MemorySigner, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("receipt: key generation failed: %w", err)
	}
	return &MemorySigner{priv: priv, pub: pub}, nil
}

// NewMemorySignerFromSeed builds the signer from a 32-byte seed, for
// deployments that persist the engine key outside the process.
func NewMemorySignerFromSeed(seed []byte) (*MemorySigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("receipt: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &MemorySigner{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// DeriveForNetwork derives a network-specific signer from this one via
// HKDF-SHA256, so receipts for different networks verify under different
// keys while operators manage a single master seed.
func (s *MemorySigner) DeriveForNetwork(network string) (*MemorySigner, error) {
	if network == "" {
		return nil, fmt.Errorf("receipt: empty network name")
	}
	r := hkdf.New(sha256.New, s.priv.Seed(), []byte("sapio-network-kdf"), []byte(network))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("receipt: HKDF derivation failed: %w", err)
	}
	return NewMemorySignerFromSeed(seed)
}

func (s *MemorySigner) Sign(data []byte) (string, error) {
	return hex.EncodeToString(ed25519.Sign(s.priv, data)), nil
}

func (s *MemorySigner) PublicKey() string {
	return hex.EncodeToString(s.pub)
}

// TemplateRoot hashes the ordered list of template hashes of a compiled
// contract into a single commitment.
func TemplateRoot(c *contract.Compiled) (string, error) {
	tmpls := c.Templates()
	hashes := make([]string, len(tmpls))
	for i, t := range tmpls {
		h, err := t.Hash()
		if err != nil {
			return "", fmt.Errorf("receipt: hash template %d: %w", i, err)
		}
		hashes[i] = h
	}
	return canonical.Hash(hashes)
}

// signingPayload is the canonical receipt body with the signature blanked.
func signingPayload(r *Receipt) ([]byte, error) {
	cp := *r
	cp.Signature = ""
	return canonical.JCS(cp)
}

// Issue signs a receipt for a compiled contract. args is hashed as given;
// pass the same value the compile pass received.
func Issue(s Signer, kind string, c *contract.Compiled, args any, now time.Time) (*Receipt, error) {
	contractHash, err := c.Hash()
	if err != nil {
		return nil, fmt.Errorf("receipt: hash contract: %w", err)
	}
	argsHash, err := canonical.Hash(args)
	if err != nil {
		return nil, fmt.Errorf("receipt: hash args: %w", err)
	}
	root, err := TemplateRoot(c)
	if err != nil {
		return nil, err
	}

	r := &Receipt{
		ID:           uuid.NewString(),
		Kind:         kind,
		Network:      c.Network,
		ContractHash: contractHash,
		ArgsHash:     argsHash,
		TemplateRoot: root,
		IssuedAt:     now.UTC(),
		PublicKey:    s.PublicKey(),
	}
	payload, err := signingPayload(r)
	if err != nil {
		return nil, fmt.Errorf("receipt: canonicalize: %w", err)
	}
	sig, err := s.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("receipt: sign: %w", err)
	}
	r.Signature = sig
	return r, nil
}

// Verify checks the receipt's signature against its embedded public key.
func Verify(r *Receipt) error {
	if r.Signature == "" {
		return fmt.Errorf("receipt: missing signature")
	}
	pub, err := hex.DecodeString(r.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("receipt: invalid public key")
	}
	sig, err := hex.DecodeString(r.Signature)
	if err != nil {
		return fmt.Errorf("receipt: invalid signature hex: %w", err)
	}
	payload, err := signingPayload(r)
	if err != nil {
		return fmt.Errorf("receipt: canonicalize: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), payload, sig) {
		return fmt.Errorf("receipt: signature verification failed")
	}
	return nil
}

// VerifyFor checks the signature and that the receipt actually attests
// the given compiled contract and arguments.
func VerifyFor(r *Receipt, c *contract.Compiled, args any) error {
	if err := Verify(r); err != nil {
		return err
	}
	contractHash, err := c.Hash()
	if err != nil {
		return fmt.Errorf("receipt: hash contract: %w", err)
	}
	if r.ContractHash != contractHash {
		return fmt.Errorf("receipt: contract hash mismatch")
	}
	argsHash, err := canonical.Hash(args)
	if err != nil {
		return fmt.Errorf("receipt: hash args: %w", err)
	}
	if r.ArgsHash != argsHash {
		return fmt.Errorf("receipt: args hash mismatch")
	}
	root, err := TemplateRoot(c)
	if err != nil {
		return err
	}
	if r.TemplateRoot != root {
		return fmt.Errorf("receipt: template root mismatch")
	}
	return nil
}
