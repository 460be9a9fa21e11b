package ton

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TON Connect proof verification
// https://docs.ton.org/develop/dapps/ton-connect/sign

// ProofTTL is how long a TON Connect proof is valid
const ProofTTL = 15 * time.Minute

var (
	ErrProofExpired     = errors.New("proof expired")
	ErrDomainMismatch   = errors.New("domain mismatch")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidAddress   = errors.New("invalid address")
)

// ConnectProof represents the proof sent by TON Connect
type ConnectProof struct {
	Timestamp int64  `json:"timestamp"`
	Domain    Domain `json:"domain"`
	Signature string `json:"signature"`
	Payload   string `json:"payload"`
}

// Domain represents the domain part of the proof
type Domain struct {
	LengthBytes int    `json:"lengthBytes"`
	Value       string `json:"value"`
}

// WalletAccount represents wallet account info from TON Connect
type WalletAccount struct {
	Address   string `json:"address"`
	Chain     string `json:"chain"`
	PublicKey string `json:"publicKey"`
}

// Address is a parsed account address
type Address struct {
	Workchain int32
	Hash      [32]byte
}

// Raw returns the "wc:hex" form used as the canonical stored value
func (a Address) Raw() string {
	return fmt.Sprintf("%d:%s", a.Workchain, hex.EncodeToString(a.Hash[:]))
}

// VerifyProof verifies TON Connect wallet ownership proof
func VerifyProof(account WalletAccount, proof ConnectProof, allowedDomain string, now time.Time) error {
	if now.Sub(time.Unix(proof.Timestamp, 0)) > ProofTTL {
		return ErrProofExpired
	}
	if allowedDomain != "" && proof.Domain.Value != allowedDomain {
		return fmt.Errorf("%w: expected %s, got %s", ErrDomainMismatch, allowedDomain, proof.Domain.Value)
	}

	pub, err := hex.DecodeString(account.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid public key format: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return errors.New("invalid public key size")
	}

	sig, err := base64.StdEncoding.DecodeString(proof.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature format: %w", err)
	}

	addr, err := ParseAddress(account.Address)
	if err != nil {
		return err
	}

	if !ed25519.Verify(pub, ProofMessage(addr, proof), sig) {
		return ErrInvalidSignature
	}
	return nil
}

// ProofMessage builds the hash the wallet signs:
// sha256(0xffff ++ "ton-connect" ++ sha256(message))
func ProofMessage(addr Address, proof ConnectProof) []byte {
	var msg []byte
	msg = append(msg, "ton-proof-item-v2/"...)
	msg = binary.BigEndian.AppendUint32(msg, uint32(addr.Workchain))
	msg = append(msg, addr.Hash[:]...)
	msg = binary.LittleEndian.AppendUint32(msg, uint32(proof.Domain.LengthBytes))
	msg = append(msg, proof.Domain.Value...)
	msg = binary.LittleEndian.AppendUint64(msg, uint64(proof.Timestamp))
	msg = append(msg, proof.Payload...)
	inner := sha256.Sum256(msg)

	full := append([]byte{0xff, 0xff}, "ton-connect"...)
	full = append(full, inner[:]...)
	out := sha256.Sum256(full)
	return out[:]
}

// ParseAddress accepts the raw form (0:hex, -1:hex) and the 48-char user-friendly form
func ParseAddress(address string) (Address, error) {
	var a Address
	if wc, hash, ok := strings.Cut(address, ":"); ok {
		n, err := strconv.ParseInt(wc, 10, 32)
		if err != nil || (n != 0 && n != -1) {
			return a, fmt.Errorf("%w: bad workchain %q", ErrInvalidAddress, wc)
		}
		raw, err := hex.DecodeString(hash)
		if err != nil || len(raw) != 32 {
			return a, fmt.Errorf("%w: bad hash", ErrInvalidAddress)
		}
		a.Workchain = int32(n)
		copy(a.Hash[:], raw)
		return a, nil
	}

	if len(address) != 48 {
		return a, fmt.Errorf("%w: unknown format", ErrInvalidAddress)
	}
	decoded, err := base64.RawURLEncoding.DecodeString(address)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(address)
	}
	if err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	// 1 byte flags + 1 byte workchain + 32 bytes hash + 2 bytes CRC
	if len(decoded) != 36 {
		return a, fmt.Errorf("%w: bad length", ErrInvalidAddress)
	}
	if crc16(decoded[:34]) != binary.BigEndian.Uint16(decoded[34:]) {
		return a, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	a.Workchain = int32(int8(decoded[1]))
	copy(a.Hash[:], decoded[2:34])
	return a, nil
}

// NormalizeAddress converts address to raw format
func NormalizeAddress(address string) (string, error) {
	a, err := ParseAddress(strings.TrimSpace(address))
	if err != nil {
		return "", err
	}
	return a.Raw(), nil
}

// ValidateAddress checks if the TON address format is valid
func ValidateAddress(address string) bool {
	_, err := ParseAddress(address)
	return err == nil
}

// crc16 XMODEM, как в user-friendly адресах
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
