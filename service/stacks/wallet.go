package stacks

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cosmos/go-bip39"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // Required for Stacks hash160 addresses
)

// CoinType is the SLIP-44 coin type registered for Stacks.
const CoinType uint32 = 5757

// ErrInvalidMnemonic is returned when the seed phrase fails BIP39 validation.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// Account is a single derived signing key. It lives only in memory.
type Account struct {
	Index      uint32
	PrivateKey *btcec.PrivateKey
}

// PublicKey returns the compressed 33-byte public key.
func (a *Account) PublicKey() []byte {
	return a.PrivateKey.PubKey().SerializeCompressed()
}

// Address returns the single-sig address of the account on the given network.
func (a *Account) Address(network Network) (string, error) {
	return AddressFromPrivateKey(a.PrivateKey, network)
}

// DerivationPath returns the BIP44 path used for the account at index.
func DerivationPath(index uint32) string {
	return fmt.Sprintf("m/44'/%d'/0'/0/%d", CoinType, index)
}

// DeriveAccounts derives count accounts from a BIP39 mnemonic along
// m/44'/5757'/0'/0/i. The seed uses an empty BIP39 passphrase.
func DeriveAccounts(mnemonic string, count int) ([]*Account, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if mnemonic == "" || !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	if count < 1 {
		return nil, fmt.Errorf("account count must be positive, got %d", count)
	}

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}

	// The network params only affect the extended key serialization, which we never export.
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	branch := master
	for _, idx := range []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + CoinType,
		hdkeychain.HardenedKeyStart + 0,
		0,
	} {
		branch, err = branch.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to derive account branch: %w", err)
		}
	}

	accounts := make([]*Account, 0, count)
	for i := 0; i < count; i++ {
		child, err := branch.Derive(uint32(i))
		if err != nil {
			return nil, fmt.Errorf("failed to derive account %d: %w", i, err)
		}
		priv, err := child.ECPrivKey()
		if err != nil {
			return nil, fmt.Errorf("failed to extract private key for account %d: %w", i, err)
		}
		accounts = append(accounts, &Account{Index: uint32(i), PrivateKey: priv})
	}

	return accounts, nil
}

// Hash160 computes RIPEMD160(SHA256(data)).
func Hash160(data []byte) []byte {
	sha := sha256.Sum256(data)
	rip := ripemd160.New()
	rip.Write(sha[:])
	return rip.Sum(nil)
}

// AddressFromPrivateKey derives the single-sig address for a compressed key.
func AddressFromPrivateKey(key *btcec.PrivateKey, network Network) (string, error) {
	if key == nil {
		return "", fmt.Errorf("private key cannot be nil")
	}
	return EncodeAddress(network.AddressVersion(), Hash160(key.PubKey().SerializeCompressed()))
}
