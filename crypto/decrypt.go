package crypto

import (
	"crypto/aes"
	"crypto/subtle"
	"fmt"

	"github.com/opd-ai/seclink/limits"
)

// DecryptSymmetric reverses Encrypt for an AES key.
//
// Only symmetric decryption exists: the client never holds an RSA private key.
func DecryptSymmetric(data []byte, key AESKey) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}

	if len(data) == 0 || len(data)%limits.AESBlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a positive multiple of the block size", ErrCryptoFailure, len(data))
	}

	out := make([]byte, len(data))
	for i := 0; i < len(data); i += limits.AESBlockSize {
		block.Decrypt(out[i:i+limits.AESBlockSize], data[i:i+limits.AESBlockSize])
	}

	plain, err := unpad(out, limits.AESBlockSize)
	if err != nil {
		failure(logFor("DecryptSymmetric").WithFields(SecureFieldHash(data, "ciphertext")), err, "padding", "decrypt").
			Debug("Symmetric decryption failed")
		return nil, err
	}
	return plain, nil
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrCryptoFailure)
	}

	expected := make([]byte, n)
	for i := range expected {
		expected[i] = byte(n)
	}
	if subtle.ConstantTimeCompare(data[len(data)-n:], expected) != 1 {
		return nil, fmt.Errorf("%w: bad padding", ErrCryptoFailure)
	}
	return data[:len(data)-n], nil
}
