package providers

import (
	"crypto/rand"

	"github.com/chain/txvm/crypto/ed25519"
	"github.com/pkg/errors"
	"github.com/stellar/go/keypair"
)

// Wallet holds an account's txvm ed25519 keypair and its separate
// strkey-addressed Stellar keypair, the same pairing the teacher's
// custodian keeps (a fixed ed25519 custodianPrv alongside an
// independently generated/parsed Stellar account keypair). Signing and
// signature verification are caller concerns (spec.md §1 Non-goals:
// "enforce signature validity (callers pre-validate)"); the façade
// only generates and parses key material.
type Wallet struct {
	Priv    ed25519.PrivateKey
	Pub     ed25519.PublicKey
	Seed    string // strkey seed for the Stellar-side keypair; keep secret
	Address string
}

// NewWallet generates a fresh txvm ed25519 keypair plus a fresh
// Stellar account keypair, mirroring makeNewCustodianAccount's
// keypair.Random() call.
func NewWallet() (*Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generating txvm keypair")
	}
	pair, err := keypair.Random()
	if err != nil {
		return nil, errors.Wrap(err, "generating stellar keypair")
	}
	return &Wallet{Priv: priv, Pub: pub, Seed: pair.Seed(), Address: pair.Address()}, nil
}

// WalletFromSeed reconstructs the Stellar-side half of a Wallet from a
// previously stored strkey seed, mirroring custodianAccount's
// keypair.Parse(seed) path for a preexisting account. The txvm
// keypair is generated fresh, since it has no persisted seed of its
// own in this façade.
func WalletFromSeed(seed string) (*Wallet, error) {
	kp, err := keypair.Parse(seed)
	if err != nil {
		return nil, errors.Wrap(err, "parsing wallet seed")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generating txvm keypair")
	}
	return &Wallet{Priv: priv, Pub: pub, Seed: seed, Address: kp.Address()}, nil
}
