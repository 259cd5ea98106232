package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/seclink/limits"
)

// KeyKind identifies the algorithm a Key is used with.
type KeyKind int

const (
	// KindUnknown is the zero value and is never accepted by Encrypt.
	KindUnknown KeyKind = iota
	// KindRSAPublic marks an RSA public key (server side of the handshake).
	KindRSAPublic
	// KindAES marks a symmetric AES session key.
	KindAES
)

// String returns the algorithm name of the kind.
func (k KeyKind) String() string {
	switch k {
	case KindRSAPublic:
		return "RSA"
	case KindAES:
		return "AES"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Key is a key usable with Encrypt. The declared Kind selects the algorithm.
type Key interface {
	Kind() KeyKind
}

// ErrInvalidPublicKey is returned when RSA key components cannot form a usable key.
var ErrInvalidPublicKey = errors.New("invalid rsa public key")

// RSAPublicKey is the server's public key reconstructed from the handshake.
type RSAPublicKey struct {
	*rsa.PublicKey
}

// Kind implements Key.
func (k *RSAPublicKey) Kind() KeyKind { return KindRSAPublic }

// AESKey is a raw AES key (16, 24 or 32 bytes).
type AESKey []byte

// Kind implements Key.
func (k AESKey) Kind() KeyKind { return KindAES }

// GenerateAESKey creates a new random 256-bit AES key.
func GenerateAESKey() (AESKey, error) {
	key := make(AESKey, limits.AESKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate aes key: %w", err)
	}
	return key, nil
}

// PublicKeyFromComponents rebuilds an RSA public key from big-endian unsigned
// exponent and modulus bytes as sent by the server.
func PublicKeyFromComponents(exponent, modulus []byte) (*RSAPublicKey, error) {
	logger := logFor("PublicKeyFromComponents").WithFields(logrus.Fields{
		"modulus_size":  len(modulus),
		"exponent_size": len(exponent),
	})

	n := new(big.Int).SetBytes(modulus)
	if n.Sign() == 0 {
		logger.Warn("Rejecting public key with empty modulus")
		return nil, fmt.Errorf("%w: empty modulus", ErrInvalidPublicKey)
	}
	if (n.BitLen()+7)/8 < limits.MinRSAModulusBytes {
		logger.Warn("Rejecting public key with short modulus")
		return nil, fmt.Errorf("%w: modulus of %d bits is too short", ErrInvalidPublicKey, n.BitLen())
	}

	e := new(big.Int).SetBytes(exponent)
	if e.Cmp(big.NewInt(2)) < 0 || e.BitLen() > 31 {
		logger.Warn("Rejecting public key with invalid exponent")
		return nil, fmt.Errorf("%w: exponent out of range", ErrInvalidPublicKey)
	}

	logger.Debug("Reconstructed server public key")
	return &RSAPublicKey{PublicKey: &rsa.PublicKey{N: n, E: int(e.Int64())}}, nil
}
