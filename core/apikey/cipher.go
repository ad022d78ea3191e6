package apikey

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

var errMalformedSecret = errors.New("malformed secret")

// Cipher encrypts API keys at rest with XChaCha20-Poly1305.
// Sealed values are base64(nonce || ciphertext).
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the encryption key from secretKey.
func NewCipher(secretKey string) (*Cipher, error) {
	key := sha256.Sum256([]byte("quantummftools.core.apikey:" + secretKey))
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "apikey.NewCipher")
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Encrypt(plain string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "generating nonce")
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(secret string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return "", errors.Wrap(errMalformedSecret, err.Error())
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", errMalformedSecret
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(err, "decrypting secret")
	}
	return string(plain), nil
}
