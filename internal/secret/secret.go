// Package secret encrypts private keys at rest.
//
// Envelopes are colon-joined hex strings. The current format is
// iv:tag:ciphertext (AES-256-GCM); the legacy format iv:ciphertext
// (AES-256-CBC, PKCS#7) is still readable but never written.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("invalid wallet encryption key")
	ErrDecryption    = errors.New("decryption failed")
)

const (
	KeySize   = 32
	nonceSize = 12
	tagSize   = 16
)

// Cipher holds the operator-supplied symmetric key.
type Cipher struct {
	key []byte
}

// New validates hexKey and returns a Cipher. Call it at process start so a
// bad key fails loudly instead of on the first wallet read.
func New(hexKey string) (*Cipher, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrConfiguration)
	}
	key, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrConfiguration, len(key), KeySize)
	}
	return &Cipher{key: key}, nil
}

// Encrypt seals plaintext into an iv:tag:ciphertext envelope.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aead, err := c.gcm(nonceSize)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens an envelope. Strings that are not envelopes (no colon, or
// too many parts) are returned unchanged.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	switch len(parts) {
	case 3:
		return c.decryptGCM(parts[0], parts[1], parts[2])
	case 2:
		return c.decryptCBC(parts[0], parts[1])
	default:
		return envelope, nil
	}
}

// IsEnvelope reports whether s has the shape of an envelope.
func IsEnvelope(s string) bool {
	n := strings.Count(s, ":")
	return n == 1 || n == 2
}

func (c *Cipher) decryptGCM(ivHex, tagHex, ctHex string) (string, error) {
	iv, tag, ct, err := decodeParts(ivHex, tagHex, ctHex)
	if err != nil {
		return "", err
	}
	if len(iv) == 0 || len(tag) != tagSize {
		return "", fmt.Errorf("%w: malformed envelope", ErrDecryption)
	}

	aead, err := c.gcm(len(iv))
	if err != nil {
		return "", err
	}

	plain, err := aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plain), nil
}

func (c *Cipher) decryptCBC(ivHex, ctHex string) (string, error) {
	iv, ct, _, err := decodeParts(ivHex, ctHex, "")
	if err != nil {
		return "", err
	}
	if len(iv) != aes.BlockSize || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: malformed legacy envelope", ErrDecryption)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	plain, err = unpad(plain)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (c *Cipher) gcm(nonceLen int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	if nonceLen == nonceSize {
		return cipher.NewGCM(block)
	}
	return cipher.NewGCMWithNonceSize(block, nonceLen)
}

func decodeParts(a, b, c string) ([]byte, []byte, []byte, error) {
	out := make([][]byte, 3)
	for i, s := range []string{a, b, c} {
		v, err := hex.DecodeString(s)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: %v", ErrDecryption, err)
		}
		out[i] = v
	}
	return out[0], out[1], out[2], nil
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
		}
	}
	return b[:len(b)-n], nil
}
