package crypto

import (
	"encoding/hex"
	"math/big"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a short hex fingerprint of the server public key.
//
// It hashes modulus||exponent with BLAKE2b-256 and truncates to 10 bytes.
func Fingerprint(key *RSAPublicKey) string {
	if key == nil || key.PublicKey == nil {
		return ""
	}
	buf := append(key.N.Bytes(), big.NewInt(int64(key.E)).Bytes()...)
	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:10])
}
