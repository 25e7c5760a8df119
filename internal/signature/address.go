package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // only available hash160 primitive for Stacks addressing

	"github.com/b2pix/engine/internal/apperr"
)

// Stacks single-signature address versions (c32AddressEncode's "version"
// byte), grounded on the public c32check address spec.
const (
	VersionMainnetSingleSig byte = 22
	VersionTestnetSingleSig byte = 26
)

const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// hash160 is RIPEMD160(SHA256(data)), the Stacks/Bitcoin address digest.
func hash160(data []byte) []byte {
	sum := sha256.Sum256(data)
	h := ripemd160.New()
	h.Write(sum[:])
	return h.Sum(nil)
}

// c32Encode renders data as base32 over the 32-character c32 alphabet,
// MSB first, mapping each leading zero byte of data to exactly one
// leading '0' character — the same convention Base58Check uses for
// leading zero bytes.
func c32Encode(data []byte) string {
	zeroBytes := 0
	for zeroBytes < len(data) && data[zeroBytes] == 0 {
		zeroBytes++
	}

	var digits []byte
	carry := 0
	carryBits := uint(0)
	for i := len(data) - 1; i >= 0; i-- {
		carry |= int(data[i]) << carryBits
		carryBits += 8
		for carryBits >= 5 {
			digits = append(digits, c32Alphabet[carry&0x1f])
			carry >>= 5
			carryBits -= 5
		}
	}
	if carryBits > 0 {
		digits = append(digits, c32Alphabet[carry&0x1f])
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}

	encoded := strings.TrimLeft(string(digits), "0")
	if encoded == "" {
		encoded = "0"
	}
	return strings.Repeat("0", zeroBytes) + encoded
}

// c32CheckEncode is c32checkEncode: version-prefixed, checksummed c32.
func c32CheckEncode(version byte, payload []byte) string {
	checksumInput := append([]byte{version}, payload...)
	round1 := sha256.Sum256(checksumInput)
	round2 := sha256.Sum256(round1[:])
	checksum := round2[:4]

	body := c32Encode(append(append([]byte{}, payload...), checksum...))
	return string(c32Alphabet[version]) + body
}

// DeriveAddress computes the Stacks address encoded by a 33-byte
// compressed secp256k1 public key, matching stacks.js's
// c32address(version, hash160(publicKey)).
func DeriveAddress(pubKeyHex string, version byte) (string, error) {
	pubKeyBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return "", apperr.Wrap(apperr.Validation, err, "decode public key hex")
	}
	return "S" + c32CheckEncode(version, hash160(pubKeyBytes)), nil
}
