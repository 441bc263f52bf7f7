package daemon

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/bardlex/turtlego/pkg/errors"
)

// ValidateHash checks that hash is a 32-byte value in hex, as block and transaction
// hashes are
func ValidateHash(operation, hash string) error {
	raw, err := hex.DecodeString(hash)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, operation, "hash is not hex").
			WithContext("hash", hash)
	}
	if _, err := chainhash.NewHash(raw); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, operation, "hash must be 32 bytes").
			WithContext("hash", hash)
	}
	return nil
}

// ValidateHashes applies ValidateHash to every element
func ValidateHashes(operation string, hashes []string) error {
	for _, h := range hashes {
		if err := ValidateHash(operation, h); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBlob checks that blob is non-empty hex
func ValidateBlob(operation, blob string) error {
	if blob == "" {
		return errors.New(errors.ErrorTypeValidation, operation, "blob is empty")
	}
	if _, err := hex.DecodeString(blob); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, operation, "blob is not hex").
			WithContext("blob_length", len(blob))
	}
	return nil
}

// BlockVersion reads the major and minor version varints at the start of a hex block blob
func BlockVersion(blob string) (major, minor uint64, err error) {
	if err := ValidateBlob("block_version", blob); err != nil {
		return 0, 0, err
	}

	raw, _ := hex.DecodeString(blob)
	major, n := binary.Uvarint(raw)
	if n <= 0 {
		return 0, 0, errors.New(errors.ErrorTypeValidation, "block_version", "truncated major version")
	}
	minor, m := binary.Uvarint(raw[n:])
	if m <= 0 {
		return 0, 0, errors.New(errors.ErrorTypeValidation, "block_version", "truncated minor version")
	}
	return major, minor, nil
}
