// Package crypto sequences the primitives used by the seclink handshake and
// session traffic.
//
// The package does not implement any cipher itself. It selects between
// RSA-OAEP (SHA-512 digest, MGF1 with SHA-512, empty label) for the server's
// public key and AES for the session key, based on the kind a [Key] declares:
//
//	key, _ := crypto.GenerateAESKey()
//	sealed, err := crypto.Encrypt(payload, key)
//	plain, err := crypto.DecryptSymmetric(sealed, key)
//
// AES runs in the mode a JCE server uses when asked for plain "AES": ECB with
// PKCS#7 padding and no IV. Any other key kind fails with
// [ErrUnsupportedKeyKind]; malformed ciphertext or padding fails with
// [ErrCryptoFailure].
//
// The server key arrives as raw big-endian exponent and modulus bytes and is
// rebuilt with [PublicKeyFromComponents], which rejects unusable components
// with [ErrInvalidPublicKey] instead of yielding a nil key.
//
// [Fingerprint] gives a short BLAKE2b digest of the server key for display and
// logs.
package crypto
