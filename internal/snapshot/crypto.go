package snapshot

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

// magic prefixes every encrypted snapshot so foreign files are rejected
// before key derivation.
var magic = []byte("ROTASNP1")

// ErrBadSnapshot is returned for files that are not snapshots or do not
// decrypt with the given passphrase.
var ErrBadSnapshot = errors.New("bad snapshot")

func newSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// deriveKey derives a 32-byte AES-256 key from a passphrase with Argon2id.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under passphrase with a fresh salt and nonce.
// Layout: magic | salt | nonce | AES-256-GCM ciphertext. The magic and salt
// are authenticated as additional data.
func Encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	salt, err := newSalt()
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	header := make([]byte, 0, len(magic)+saltSize+nonceSize)
	header = append(header, magic...)
	header = append(header, salt...)
	aad := bytes.Clone(header)
	header = append(header, nonce...)

	return gcm.Seal(header, nonce, plaintext, aad), nil
}

// Decrypt reverses Encrypt.
func Decrypt(data []byte, passphrase string) ([]byte, error) {
	headerSize := len(magic) + saltSize + nonceSize
	if len(data) < headerSize || !bytes.Equal(data[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: missing header", ErrBadSnapshot)
	}
	salt := data[len(magic) : len(magic)+saltSize]
	nonce := data[len(magic)+saltSize : headerSize]

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, data[headerSize:], data[:len(magic)+saltSize])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	return plaintext, nil
}

// EncryptFile encrypts srcPath to dstPath with mode 0600.
func EncryptFile(srcPath, dstPath, passphrase string) error {
	plaintext, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	sealed, err := Encrypt(plaintext, passphrase)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dstPath, sealed, 0o600); err != nil {
		return fmt.Errorf("write encrypted file: %w", err)
	}
	return nil
}

// DecryptFile decrypts srcPath to dstPath with mode 0600.
func DecryptFile(srcPath, dstPath, passphrase string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read encrypted file: %w", err)
	}
	plaintext, err := Decrypt(data, passphrase)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dstPath, plaintext, 0o600); err != nil {
		return fmt.Errorf("write decrypted file: %w", err)
	}
	return nil
}
