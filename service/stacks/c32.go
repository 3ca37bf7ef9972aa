package stacks

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// c32Alphabet is Crockford's base32 alphabet as used by c32check.
const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var (
	errInvalidC32     = errors.New("invalid c32 string")
	errC32Checksum    = errors.New("c32check checksum mismatch")
	errInvalidAddress = errors.New("invalid stacks address")
)

// c32Encode encodes data as big-endian base32, keeping one '0' per leading zero byte.
func c32Encode(data []byte) string {
	zeros := 0
	for zeros < len(data) && data[zeros] == 0 {
		zeros++
	}

	n := new(big.Int).SetBytes(data)
	radix := big.NewInt(32)
	mod := new(big.Int)

	var digits []byte
	for n.Sign() > 0 {
		n.DivMod(n, radix, mod)
		digits = append(digits, c32Alphabet[mod.Int64()])
	}
	for i := 0; i < zeros; i++ {
		digits = append(digits, c32Alphabet[0])
	}

	// digits were produced least significant first
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}

// c32Normalize maps the ambiguous characters Crockford allows onto the canonical alphabet.
func c32Normalize(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "O", "0")
	s = strings.ReplaceAll(s, "L", "1")
	s = strings.ReplaceAll(s, "I", "1")
	return s
}

// c32Decode is the inverse of c32Encode.
func c32Decode(s string) ([]byte, error) {
	s = c32Normalize(s)

	zeros := 0
	for zeros < len(s) && s[zeros] == c32Alphabet[0] {
		zeros++
	}

	n := new(big.Int)
	radix := big.NewInt(32)
	for _, r := range s[zeros:] {
		idx := strings.IndexRune(c32Alphabet, r)
		if idx < 0 {
			return nil, fmt.Errorf("%w: unexpected character %q", errInvalidC32, r)
		}
		n.Mul(n, radix)
		n.Add(n, big.NewInt(int64(idx)))
	}

	return append(make([]byte, zeros), n.Bytes()...), nil
}

// c32Checksum is the first four bytes of sha256(sha256(version || data)).
func c32Checksum(version byte, data []byte) []byte {
	first := sha256.Sum256(append([]byte{version}, data...))
	second := sha256.Sum256(first[:])
	return second[:4]
}

// c32CheckEncode prefixes the version character to the c32 encoding of data||checksum.
func c32CheckEncode(version byte, data []byte) (string, error) {
	if version >= 32 {
		return "", fmt.Errorf("%w: version %d out of range", errInvalidC32, version)
	}
	payload := append(append([]byte{}, data...), c32Checksum(version, data)...)
	return string(c32Alphabet[version]) + c32Encode(payload), nil
}

// c32CheckDecode returns the version and payload of a c32check string.
func c32CheckDecode(s string) (byte, []byte, error) {
	s = c32Normalize(s)
	if len(s) < 2 {
		return 0, nil, fmt.Errorf("%w: too short", errInvalidC32)
	}

	version := strings.IndexByte(c32Alphabet, s[0])
	if version < 0 {
		return 0, nil, fmt.Errorf("%w: bad version character %q", errInvalidC32, s[0])
	}

	decoded, err := c32Decode(s[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(decoded) < 4 {
		return 0, nil, fmt.Errorf("%w: missing checksum", errInvalidC32)
	}

	data, checksum := decoded[:len(decoded)-4], decoded[len(decoded)-4:]
	if !bytes.Equal(checksum, c32Checksum(byte(version), data)) {
		return 0, nil, errC32Checksum
	}
	return byte(version), data, nil
}

// EncodeAddress renders a hash160 as a Stacks address ("S" + c32check).
func EncodeAddress(version byte, hash160 []byte) (string, error) {
	if len(hash160) != 20 {
		return "", fmt.Errorf("%w: hash160 must be 20 bytes, got %d", errInvalidAddress, len(hash160))
	}
	encoded, err := c32CheckEncode(version, hash160)
	if err != nil {
		return "", err
	}
	return "S" + encoded, nil
}

// DecodeAddress parses a Stacks address into its version and hash160.
func DecodeAddress(address string) (byte, []byte, error) {
	if len(address) < 2 || (address[0] != 'S' && address[0] != 's') {
		return 0, nil, fmt.Errorf("%w: %q must start with S", errInvalidAddress, address)
	}
	version, hash160, err := c32CheckDecode(address[1:])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", errInvalidAddress, err)
	}
	if len(hash160) != 20 {
		return 0, nil, fmt.Errorf("%w: hash160 must be 20 bytes, got %d", errInvalidAddress, len(hash160))
	}
	return version, hash160, nil
}
