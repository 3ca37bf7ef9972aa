package stacks

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// AuthType identifies how a transaction is authorized.
type AuthType byte

const (
	AuthTypeStandard  AuthType = 0x04
	AuthTypeSponsored AuthType = 0x05
)

// AnchorMode constrains which blocks may include the transaction.
type AnchorMode byte

const (
	AnchorModeOnChainOnly  AnchorMode = 0x01
	AnchorModeOffChainOnly AnchorMode = 0x02
	AnchorModeAny          AnchorMode = 0x03
)

// PostConditionMode controls asset transfers that are not covered by a post-condition.
type PostConditionMode byte

const (
	PostConditionModeAllow PostConditionMode = 0x01
	PostConditionModeDeny  PostConditionMode = 0x02
)

// ClarityVersion selects the smart-contract payload. Zero means the
// unversioned payload.
type ClarityVersion byte

const (
	ClarityVersionUnspecified ClarityVersion = 0
	ClarityVersion1           ClarityVersion = 1
	ClarityVersion2           ClarityVersion = 2
	ClarityVersion3           ClarityVersion = 3
)

const (
	payloadTypeSmartContract          byte = 0x01
	payloadTypeVersionedSmartContract byte = 0x06

	hashModeP2PKH         byte = 0x00
	keyEncodingCompressed byte = 0x00

	signatureLength = 65

	// MaxContractNameLength is the Clarity limit on contract names.
	MaxContractNameLength = 40
)

var contractNamePattern = regexp.MustCompile(`^[a-zA-Z]([a-zA-Z0-9]|[-_])*$`)

var (
	ErrInvalidContractName  = errors.New("invalid contract name")
	ErrMalformedTransaction = errors.New("malformed transaction")
)

// ContractDeployOptions are the inputs for building a contract-deploy transaction.
type ContractDeployOptions struct {
	Network        Network
	ContractName   string
	CodeBody       string
	SenderKey      *btcec.PrivateKey
	Nonce          uint64
	Fee            uint64
	ClarityVersion ClarityVersion
}

// ContractDeploy is a single-sig smart-contract deployment.
// Post-conditions are always empty and the mode is always Deny, so
// the deploy can never move assets as a side effect.
type ContractDeploy struct {
	Network           Network
	ContractName      string
	CodeBody          string
	Nonce             uint64
	Fee               uint64
	ClarityVersion    ClarityVersion
	AnchorMode        AnchorMode
	PostConditionMode PostConditionMode
	Signer            [20]byte
	Signature         [signatureLength]byte
}

// MakeContractDeploy builds and signs a contract-deploy transaction.
func MakeContractDeploy(opts ContractDeployOptions) (*ContractDeploy, error) {
	if err := ValidateContractName(opts.ContractName); err != nil {
		return nil, err
	}
	if opts.SenderKey == nil {
		return nil, fmt.Errorf("sender key is required")
	}
	if opts.Network != Mainnet && opts.Network != Testnet {
		return nil, fmt.Errorf("unknown network %q", opts.Network)
	}

	tx := &ContractDeploy{
		Network:           opts.Network,
		ContractName:      opts.ContractName,
		CodeBody:          opts.CodeBody,
		Nonce:             opts.Nonce,
		Fee:               opts.Fee,
		ClarityVersion:    opts.ClarityVersion,
		AnchorMode:        AnchorModeAny,
		PostConditionMode: PostConditionModeDeny,
	}
	copy(tx.Signer[:], Hash160(opts.SenderKey.PubKey().SerializeCompressed()))

	if err := tx.Sign(opts.SenderKey); err != nil {
		return nil, err
	}
	return tx, nil
}

// ValidateContractName checks the Clarity naming rules.
func ValidateContractName(name string) error {
	if name == "" || len(name) > MaxContractNameLength || !contractNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidContractName, name)
	}
	return nil
}

// Serialize encodes the transaction in wire format.
func (tx *ContractDeploy) Serialize() []byte {
	var buf bytes.Buffer

	buf.WriteByte(tx.Network.TransactionVersion())
	writeUint32(&buf, tx.Network.ChainID())

	// authorization: standard, single-sig spending condition
	buf.WriteByte(byte(AuthTypeStandard))
	buf.WriteByte(hashModeP2PKH)
	buf.Write(tx.Signer[:])
	writeUint64(&buf, tx.Nonce)
	writeUint64(&buf, tx.Fee)
	buf.WriteByte(keyEncodingCompressed)
	buf.Write(tx.Signature[:])

	buf.WriteByte(byte(tx.AnchorMode))
	buf.WriteByte(byte(tx.PostConditionMode))
	writeUint32(&buf, 0) // no post-conditions

	if tx.ClarityVersion == ClarityVersionUnspecified {
		buf.WriteByte(payloadTypeSmartContract)
	} else {
		buf.WriteByte(payloadTypeVersionedSmartContract)
		buf.WriteByte(byte(tx.ClarityVersion))
	}
	buf.WriteByte(byte(len(tx.ContractName)))
	buf.WriteString(tx.ContractName)
	writeUint32(&buf, uint32(len(tx.CodeBody)))
	buf.WriteString(tx.CodeBody)

	return buf.Bytes()
}

// Hex returns the hex-encoded wire format.
func (tx *ContractDeploy) Hex() string {
	return hex.EncodeToString(tx.Serialize())
}

// TxID is the hex sha512/256 of the serialized transaction.
func (tx *ContractDeploy) TxID() string {
	sum := sha512.Sum512_256(tx.Serialize())
	return hex.EncodeToString(sum[:])
}

// SigHashPreSign computes the digest signed by the origin: the initial
// sighash (txid with the spending condition cleared) extended with the
// auth type, fee and nonce.
func (tx *ContractDeploy) SigHashPreSign() [32]byte {
	cleared := *tx
	cleared.Nonce = 0
	cleared.Fee = 0
	cleared.Signature = [signatureLength]byte{}
	initial := sha512.Sum512_256(cleared.Serialize())

	var buf bytes.Buffer
	buf.Write(initial[:])
	buf.WriteByte(byte(AuthTypeStandard))
	writeUint64(&buf, tx.Fee)
	writeUint64(&buf, tx.Nonce)
	return sha512.Sum512_256(buf.Bytes())
}

// Sign fills the signature with a recoverable secp256k1 signature laid out
// as recovery id || r || s.
func (tx *ContractDeploy) Sign(key *btcec.PrivateKey) error {
	digest := tx.SigHashPreSign()

	// compact layout: [27 + recid + 4 (compressed)] || r || s
	compact := ecdsa.SignCompact(key, digest[:], true)
	if len(compact) != signatureLength {
		return fmt.Errorf("unexpected signature length %d", len(compact))
	}

	tx.Signature[0] = compact[0] - 27 - 4
	copy(tx.Signature[1:], compact[1:])
	return nil
}

// RecoverSigner returns the compressed public key that produced the signature.
func (tx *ContractDeploy) RecoverSigner() ([]byte, error) {
	digest := tx.SigHashPreSign()

	compact := make([]byte, signatureLength)
	compact[0] = tx.Signature[0] + 27 + 4
	copy(compact[1:], tx.Signature[1:])

	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to recover signer: %w", err)
	}
	return pub.SerializeCompressed(), nil
}

// ParseContractDeploy decodes a serialized single-sig contract-deploy transaction.
func ParseContractDeploy(raw []byte) (*ContractDeploy, error) {
	r := bytes.NewReader(raw)
	tx := &ContractDeploy{}

	version, err := r.ReadByte()
	if err != nil {
		return nil, malformed("version", err)
	}
	var chainID uint32
	if err := binary.Read(r, binary.BigEndian, &chainID); err != nil {
		return nil, malformed("chain id", err)
	}
	switch {
	case version == Mainnet.TransactionVersion() && chainID == Mainnet.ChainID():
		tx.Network = Mainnet
	case version == Testnet.TransactionVersion() && chainID == Testnet.ChainID():
		tx.Network = Testnet
	default:
		return nil, fmt.Errorf("%w: unknown version 0x%02x / chain id 0x%08x", ErrMalformedTransaction, version, chainID)
	}

	authType, err := r.ReadByte()
	if err != nil {
		return nil, malformed("auth type", err)
	}
	if AuthType(authType) != AuthTypeStandard {
		return nil, fmt.Errorf("%w: unsupported auth type 0x%02x", ErrMalformedTransaction, authType)
	}
	hashMode, err := r.ReadByte()
	if err != nil {
		return nil, malformed("hash mode", err)
	}
	if hashMode != hashModeP2PKH {
		return nil, fmt.Errorf("%w: unsupported hash mode 0x%02x", ErrMalformedTransaction, hashMode)
	}
	if _, err := io.ReadFull(r, tx.Signer[:]); err != nil {
		return nil, malformed("signer", err)
	}
	if err := binary.Read(r, binary.BigEndian, &tx.Nonce); err != nil {
		return nil, malformed("nonce", err)
	}
	if err := binary.Read(r, binary.BigEndian, &tx.Fee); err != nil {
		return nil, malformed("fee", err)
	}
	if _, err := r.ReadByte(); err != nil {
		return nil, malformed("key encoding", err)
	}
	if _, err := io.ReadFull(r, tx.Signature[:]); err != nil {
		return nil, malformed("signature", err)
	}

	anchor, err := r.ReadByte()
	if err != nil {
		return nil, malformed("anchor mode", err)
	}
	tx.AnchorMode = AnchorMode(anchor)
	pcMode, err := r.ReadByte()
	if err != nil {
		return nil, malformed("post-condition mode", err)
	}
	tx.PostConditionMode = PostConditionMode(pcMode)
	var pcCount uint32
	if err := binary.Read(r, binary.BigEndian, &pcCount); err != nil {
		return nil, malformed("post-conditions", err)
	}
	if pcCount != 0 {
		return nil, fmt.Errorf("%w: post-conditions are not supported", ErrMalformedTransaction)
	}

	payloadType, err := r.ReadByte()
	if err != nil {
		return nil, malformed("payload type", err)
	}
	switch payloadType {
	case payloadTypeSmartContract:
	case payloadTypeVersionedSmartContract:
		cv, err := r.ReadByte()
		if err != nil {
			return nil, malformed("clarity version", err)
		}
		tx.ClarityVersion = ClarityVersion(cv)
	default:
		return nil, fmt.Errorf("%w: not a contract deploy (payload 0x%02x)", ErrMalformedTransaction, payloadType)
	}

	nameLen, err := r.ReadByte()
	if err != nil {
		return nil, malformed("contract name", err)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, malformed("contract name", err)
	}
	tx.ContractName = string(name)

	var codeLen uint32
	if err := binary.Read(r, binary.BigEndian, &codeLen); err != nil {
		return nil, malformed("code body", err)
	}
	if int64(codeLen) > int64(r.Len()) {
		return nil, fmt.Errorf("%w: code body length %d exceeds remaining %d bytes", ErrMalformedTransaction, codeLen, r.Len())
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(r, code); err != nil {
		return nil, malformed("code body", err)
	}
	tx.CodeBody = string(code)

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedTransaction, r.Len())
	}
	return tx, nil
}

func malformed(field string, err error) error {
	return fmt.Errorf("%w: reading %s: %v", ErrMalformedTransaction, field, err)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
