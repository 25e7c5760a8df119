// Package signature verifies Stacks-wallet-signed messages, matching
// stacks.js's verifyMessageSignatureRsv and grounded on
// original_source/b2pix-server/src/infrastructure/blockchain/stacks/signature.rs:
// an RSV-encoded secp256k1 ECDSA signature over a varint-length-prefixed,
// domain-tagged SHA-256 message hash.
package signature

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/b2pix/engine/internal/apperr"
)

// currentPrefix and legacyPrefix are the two domain tags stacks.js has
// shipped for message signing; legacy wallets still produce signatures
// over the older tag, so verification retries against both.
const (
	currentPrefix = "\x17Stacks Signed Message:\n"
	legacyPrefix  = "\x18Stacks Message Signing:\n"
)

// encodeVarint renders n as a Bitcoin-style variable-length integer, the
// same encoding the Stacks message-hashing scheme uses for the message
// length prefix.
func encodeVarint(n uint64) []byte {
	switch {
	case n < 0xfd:
		return []byte{byte(n)}
	case n <= 0xffff:
		return []byte{0xfd, byte(n), byte(n >> 8)}
	case n <= 0xffffffff:
		return []byte{0xfe, byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
	default:
		b := make([]byte, 9)
		b[0] = 0xff
		for i := 0; i < 8; i++ {
			b[1+i] = byte(n >> (8 * i))
		}
		return b
	}
}

func hashMessage(message, prefix string) [32]byte {
	msg := []byte(message)
	encoded := make([]byte, 0, len(prefix)+9+len(msg))
	encoded = append(encoded, prefix...)
	encoded = append(encoded, encodeVarint(uint64(len(msg)))...)
	encoded = append(encoded, msg...)
	return sha256.Sum256(encoded)
}

// VerifyMessageSignatureRSV reports whether sigHex (130 hex chars: r(32)
// + s(32) + v(1), RSV order) is a valid signature over message by the
// holder of pubKeyHex (a 33-byte compressed secp256k1 public key, hex
// encoded). It retries against the legacy message prefix before
// reporting failure, matching the original implementation's dual-prefix
// fallback.
func VerifyMessageSignatureRSV(message, sigHex, pubKeyHex string) (bool, error) {
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, apperr.Wrap(apperr.Validation, err, "decode signature hex")
	}
	if len(sigBytes) != 65 {
		return false, apperr.New(apperr.Validation, "signature must be 65 bytes (RSV), got %d", len(sigBytes))
	}
	r := sigBytes[0:32]
	s := sigBytes[32:64]
	// v := sigBytes[64] // recovery id; unused here since verification is against a known pubkey, not recovery

	pubKeyBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, apperr.Wrap(apperr.Validation, err, "decode public key hex")
	}
	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, apperr.Wrap(apperr.Validation, err, "parse public key")
	}

	var rScalar, sScalar btcec.ModNScalar
	if overflow := rScalar.SetByteSlice(r); overflow {
		return false, apperr.New(apperr.Validation, "signature r overflows the curve order")
	}
	if overflow := sScalar.SetByteSlice(s); overflow {
		return false, apperr.New(apperr.Validation, "signature s overflows the curve order")
	}
	sig := ecdsa.NewSignature(&rScalar, &sScalar)

	currentHash := hashMessage(message, currentPrefix)
	if sig.Verify(currentHash[:], pubKey) {
		return true, nil
	}
	legacyHash := hashMessage(message, legacyPrefix)
	return sig.Verify(legacyHash[:], pubKey), nil
}
