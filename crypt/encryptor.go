package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

// KeySize is the required encryption key length in bytes (AES-256).
const KeySize = 32

var (
	// ErrInvalidKeySize is returned by [NewEncryptor] when the key is not
	// exactly [KeySize] bytes.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")
	// ErrDecryptionFailed is returned when a ciphertext is shorter than the
	// minimum nonce+tag length or its authentication tag does not verify.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Encryptor seals and opens small secrets with AES-256-GCM. A single
// process-wide instance is shared across the engine; it is immutable after
// construction and safe for concurrent use.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor builds an [Encryptor] from a 32-byte key. The key is retained
// only inside the AEAD state and is never logged or exposed.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce. The nonce is prepended
// to the returned ciphertext; the authentication tag is appended by GCM.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by [Encryptor.Encrypt]. It returns
// [ErrDecryptionFailed] when the input is too short to carry a nonce and tag
// or when the authentication tag does not verify.
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	minLen := e.aead.NonceSize() + e.aead.Overhead()
	if len(ciphertext) < minLen {
		return nil, ErrDecryptionFailed
	}

	nonce := ciphertext[:e.aead.NonceSize()]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext[e.aead.NonceSize():], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// EncryptString seals a string secret, such as a recovery code.
func (e *Encryptor) EncryptString(plaintext string) ([]byte, error) {
	return e.Encrypt([]byte(plaintext))
}

// DecryptToString opens a ciphertext and returns the plaintext as a string.
func (e *Encryptor) DecryptToString(ciphertext []byte) (string, error) {
	plaintext, err := e.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
