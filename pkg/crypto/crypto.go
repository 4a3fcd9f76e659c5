package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltFile      = "enc_salt.bin"
	saltLen       = 16
	keyLen        = 32
	kdfIterations = 200_000
)

// Cipher encrypts and decrypts stored message bodies with a key derived from
// a user passphrase. The random salt is persisted next to the data files so
// the same passphrase yields the same key across sessions.
type Cipher struct {
	aead cipher.AEAD
}

// New derives an AES-256-GCM cipher from passphrase. The salt is created on
// first use and stored at <dataDir>/enc_salt.bin.
func New(passphrase, dataDir string) (*Cipher, error) {
	if len(passphrase) < 8 {
		return nil, fmt.Errorf("passphrase must be at least 8 characters")
	}

	salt, err := getOrCreateSalt(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load encryption salt: %w", err)
	}

	key := pbkdf2.Key([]byte(passphrase), salt, kdfIterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Cipher{aead: aead}, nil
}

// EncryptString returns base64(nonce || ciphertext).
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString. A wrong passphrase surfaces as an
// authentication failure, not as garbage plaintext.
func (c *Cipher) DecryptString(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

func getOrCreateSalt(dataDir string) ([]byte, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dataDir, saltFile)

	if salt, err := os.ReadFile(path); err == nil && len(salt) == saltLen {
		return salt, nil
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, err
	}
	return salt, nil
}
