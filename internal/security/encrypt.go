package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/fernet/fernet-go"
)

var errUndecryptable = errors.New("failed to decrypt message body")

// Encryptor seals message bodies at rest with AES-256-GCM. Bodies written
// under an older Fernet key can still be opened when that key is supplied
// as a legacy key.
type Encryptor struct {
	aead   cipher.AEAD
	legacy []*fernet.Key
}

// NewEncryptor derives the AES key from secret with SHA-256, so secrets of
// any length are accepted.
func NewEncryptor(secret []byte, legacyKeys []string) (*Encryptor, error) {
	if len(secret) == 0 {
		return nil, errors.New("encryption key must not be empty")
	}
	sum := sha256.Sum256(secret)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	e := &Encryptor{aead: aead}
	for _, raw := range legacyKeys {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		k, err := fernet.DecodeKey(raw)
		if err != nil {
			return nil, errors.New("invalid legacy fernet key")
		}
		e.legacy = append(e.legacy, k)
	}
	return e, nil
}

// Seal encrypts plain and returns base64 of nonce||ciphertext.
func (e *Encryptor) Seal(plain string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(e.aead.Seal(nonce, nonce, []byte(plain), nil)), nil
}

// Open reverses Seal, falling back to the legacy Fernet keys. Legacy
// tokens never expire.
func (e *Encryptor) Open(sealed string) (string, error) {
	if raw, err := base64.StdEncoding.DecodeString(sealed); err == nil && len(raw) >= e.aead.NonceSize() {
		n := e.aead.NonceSize()
		if plain, err := e.aead.Open(nil, raw[:n], raw[n:], nil); err == nil {
			return string(plain), nil
		}
	}
	if len(e.legacy) > 0 {
		if plain := fernet.VerifyAndDecrypt([]byte(sealed), -1, e.legacy); plain != nil {
			return string(plain), nil
		}
	}
	return "", errUndecryptable
}
