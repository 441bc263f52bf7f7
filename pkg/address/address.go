// Package address decodes, encodes and checks TurtleCoin (CryptoNote) public addresses,
// including integrated addresses that embed a payment ID.
//
// Binary layout before base58:
//
//	varint(prefix) | [payment ID, 64 ASCII hex chars] | spend key (32) | view key (32) | checksum (4)
//
// The checksum is the first four bytes of the Keccak-256 digest of everything before it.
package address

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	stderrors "errors"

	"golang.org/x/crypto/sha3"

	"github.com/bardlex/turtlego/pkg/errors"
)

const (
	// TurtleCoinPrefix renders as "TRTL"
	TurtleCoinPrefix uint64 = 0x3bbb1d

	// KeySize is the size of a public key
	KeySize = 32
	// PaymentIDSize is the length of a payment ID in hex characters
	PaymentIDSize = 64

	checksumSize = 4
)

var (
	// ErrChecksum means the address was corrupted
	ErrChecksum = stderrors.New("address checksum mismatch")
	// ErrPrefix means the address belongs to another network
	ErrPrefix = stderrors.New("unexpected address prefix")
	// ErrLength means the decoded payload has neither the standard nor the integrated size
	ErrLength = stderrors.New("unexpected address length")
	// ErrPaymentID means a payment ID is not 64 hex characters
	ErrPaymentID = stderrors.New("payment ID must be 64 hex characters")
)

// Address is a decoded public address
type Address struct {
	Prefix         uint64
	PaymentID      string
	PublicSpendKey [KeySize]byte
	PublicViewKey  [KeySize]byte
}

// Decode parses a TurtleCoin address
func Decode(s string) (*Address, error) {
	return DecodeWithPrefix(s, TurtleCoinPrefix)
}

// DecodeWithPrefix parses an address of the network identified by prefix
func DecodeWithPrefix(s string, prefix uint64) (*Address, error) {
	raw, err := DecodeBase58(s)
	if err != nil {
		return nil, invalid(err, s)
	}

	if len(raw) <= checksumSize {
		return nil, invalid(ErrLength, s)
	}
	payload, sum := raw[:len(raw)-checksumSize], raw[len(raw)-checksumSize:]
	if !bytes.Equal(checksum(payload), sum) {
		return nil, invalid(ErrChecksum, s)
	}

	got, n := binary.Uvarint(payload)
	if n <= 0 {
		return nil, invalid(ErrPrefix, s)
	}
	if got != prefix {
		return nil, invalid(ErrPrefix, s).WithContext("prefix", got)
	}
	body := payload[n:]

	addr := &Address{Prefix: got}
	switch len(body) {
	case 2 * KeySize:
	case PaymentIDSize + 2*KeySize:
		paymentID := string(body[:PaymentIDSize])
		if err := ValidatePaymentID(paymentID); err != nil {
			return nil, invalid(ErrPaymentID, s)
		}
		addr.PaymentID = paymentID
		body = body[PaymentIDSize:]
	default:
		return nil, invalid(ErrLength, s).WithContext("length", len(body))
	}

	copy(addr.PublicSpendKey[:], body[:KeySize])
	copy(addr.PublicViewKey[:], body[KeySize:])
	return addr, nil
}

// Validate reports whether s is a well-formed TurtleCoin address
func Validate(s string) error {
	_, err := Decode(s)
	return err
}

// ValidatePaymentID checks that id is 64 hex characters
func ValidatePaymentID(id string) error {
	if len(id) != PaymentIDSize {
		return ErrPaymentID
	}
	if _, err := hex.DecodeString(id); err != nil {
		return ErrPaymentID
	}
	return nil
}

// IsIntegrated reports whether the address carries a payment ID
func (a *Address) IsIntegrated() bool {
	return a.PaymentID != ""
}

// Standard returns the address without its payment ID
func (a *Address) Standard() *Address {
	std := *a
	std.PaymentID = ""
	return &std
}

// Integrate returns the integrated address for paymentID
func (a *Address) Integrate(paymentID string) (*Address, error) {
	if err := ValidatePaymentID(paymentID); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "integrate_address", "invalid payment ID").
			WithContext("payment_id", paymentID)
	}
	integrated := *a
	integrated.PaymentID = paymentID
	return &integrated, nil
}

// String encodes the address
func (a *Address) String() string {
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], a.Prefix)

	payload := make([]byte, 0, n+len(a.PaymentID)+2*KeySize+checksumSize)
	payload = append(payload, prefix[:n]...)
	payload = append(payload, a.PaymentID...)
	payload = append(payload, a.PublicSpendKey[:]...)
	payload = append(payload, a.PublicViewKey[:]...)
	payload = append(payload, checksum(payload)...)

	return EncodeBase58(payload)
}

// PublicSpendKeyHex returns the spend key as lowercase hex
func (a *Address) PublicSpendKeyHex() string {
	return hex.EncodeToString(a.PublicSpendKey[:])
}

// PublicViewKeyHex returns the view key as lowercase hex
func (a *Address) PublicViewKeyHex() string {
	return hex.EncodeToString(a.PublicViewKey[:])
}

func checksum(payload []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(payload)
	return h.Sum(nil)[:checksumSize]
}

func invalid(cause error, s string) *errors.ServiceError {
	return errors.Wrap(cause, errors.ErrorTypeValidation, "address_decode", "invalid address").
		WithContext("address", s)
}
