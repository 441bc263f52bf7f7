package address

import (
	stderrors "errors"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// CryptoNote base58 splits the input into 8-byte blocks and encodes each one on its own,
// left-padded with the zero digit to a fixed width. A trailing short block of n bytes is
// encoded to encodedBlockSizes[n] characters.
const (
	fullBlockSize        = 8
	fullEncodedBlockSize = 11
	zeroDigit            = '1'
)

var encodedBlockSizes = [fullBlockSize + 1]int{0, 2, 3, 5, 6, 7, 9, 10, 11}

var (
	// ErrInvalidBase58 is returned for characters outside the alphabet, impossible
	// trailing block widths and blocks that overflow their byte size
	ErrInvalidBase58 = stderrors.New("invalid base58 encoding")
)

// EncodeBase58 encodes data with the CryptoNote block scheme
func EncodeBase58(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data)/fullBlockSize*fullEncodedBlockSize + encodedBlockSizes[len(data)%fullBlockSize])

	for start := 0; start < len(data); start += fullBlockSize {
		end := min(start+fullBlockSize, len(data))
		sb.WriteString(encodeBlock(data[start:end]))
	}
	return sb.String()
}

// DecodeBase58 reverses EncodeBase58
func DecodeBase58(s string) ([]byte, error) {
	fullBlocks := len(s) / fullEncodedBlockSize
	lastEncoded := len(s) % fullEncodedBlockSize

	lastSize := -1
	for size, encoded := range encodedBlockSizes {
		if encoded == lastEncoded {
			lastSize = size
			break
		}
	}
	if lastSize < 0 {
		return nil, ErrInvalidBase58
	}

	out := make([]byte, 0, fullBlocks*fullBlockSize+lastSize)
	for i := range fullBlocks {
		block, err := decodeBlock(s[i*fullEncodedBlockSize:(i+1)*fullEncodedBlockSize], fullBlockSize)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}

	if lastSize > 0 {
		block, err := decodeBlock(s[fullBlocks*fullEncodedBlockSize:], lastSize)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}

	return out, nil
}

// encodeBlock renders one block through the plain base58 codec and fixes the width.
// The plain codec maps each leading zero byte to one zero digit, which is stripped
// here and replaced by padding.
func encodeBlock(block []byte) string {
	digits := strings.TrimLeft(base58.Encode(block), string(zeroDigit))
	width := encodedBlockSizes[len(block)]
	return strings.Repeat(string(zeroDigit), width-len(digits)) + digits
}

func decodeBlock(chunk string, size int) ([]byte, error) {
	raw := base58.Decode(chunk)
	if len(raw) == 0 {
		return nil, ErrInvalidBase58
	}

	i := 0
	for i < len(raw) && raw[i] == 0 {
		i++
	}
	value := raw[i:]
	if len(value) > size {
		return nil, ErrInvalidBase58
	}

	block := make([]byte, size)
	copy(block[size-len(value):], value)
	return block, nil
}
