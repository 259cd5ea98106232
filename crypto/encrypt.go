package crypto

import (
	"crypto/aes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/opd-ai/seclink/limits"
)

var (
	// ErrUnsupportedKeyKind is returned when a key is neither RSA nor AES.
	ErrUnsupportedKeyKind = errors.New("only RSA and AES are supported for encryption")

	// ErrCryptoFailure wraps cipher construction, padding and integrity errors.
	ErrCryptoFailure = errors.New("crypto failure")
)

// Encrypt encrypts data with key, selecting the algorithm from key.Kind().
//
// RSA keys use OAEP with SHA-512 as both digest and MGF1 hash and an empty
// label. AES keys use the provider default mode of the server side, which is
// ECB with PKCS#7 padding.
func Encrypt(data []byte, key Key) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil key", ErrUnsupportedKeyKind)
	}

	switch key.Kind() {
	case KindRSAPublic:
		if k, ok := key.(*RSAPublicKey); ok && k.PublicKey != nil {
			return encryptRSA(data, k)
		}
	case KindAES:
		if k, ok := key.(AESKey); ok {
			return encryptAES(data, k)
		}
	}

	logFor("Encrypt").WithField("kind", key.Kind().String()).Warn("Rejected unsupported key")
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedKeyKind, key.Kind())
}

func encryptRSA(data []byte, key *RSAPublicKey) ([]byte, error) {
	out, err := rsa.EncryptOAEP(sha512.New(), rand.Reader, key.PublicKey, data, nil)
	if err != nil {
		failure(logFor("encryptRSA"), err, "oaep", "encrypt").Warn("RSA encryption failed")
		return nil, fmt.Errorf("%w: rsa-oaep: %v", ErrCryptoFailure, err)
	}
	return out, nil
}

func encryptAES(data []byte, key AESKey) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}

	padded := pad(data, limits.AESBlockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += limits.AESBlockSize {
		block.Encrypt(out[i:i+limits.AESBlockSize], padded[i:i+limits.AESBlockSize])
	}
	return out, nil
}

// pad applies PKCS#7 padding; a full block is appended when data is aligned.
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}
