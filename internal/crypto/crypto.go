// Package crypto encrypts stored database credentials.
//
// Tokens have the form salt:iv:ciphertext, each part hex encoded. The key is
// derived per token from the master secret and the salt with PBKDF2-SHA512;
// the cipher is AES-256-CBC with PKCS#7 padding.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	Iterations = 100_000
	KeyLen     = 32
	SaltLen    = 16
)

var (
	ErrNoSecret   = errors.New("encryption secret is empty")
	ErrMalformed  = errors.New("malformed encrypted value")
	ErrBadPadding = errors.New("invalid padding")
)

type Cipher struct {
	secret []byte
}

func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Cipher{secret: []byte(secret)}, nil
}

func (c *Cipher) key(salt []byte) []byte {
	return pbkdf2.Key(c.secret, salt, Iterations, KeyLen, sha512.New)
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, SaltLen)
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	block, err := aes.NewCipher(c.key(salt))
	if err != nil {
		return "", err
	}
	data := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)

	return strings.Join([]string{
		hex.EncodeToString(salt),
		hex.EncodeToString(iv),
		hex.EncodeToString(out),
	}, ":"), nil
}

func (c *Cipher) Decrypt(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", ErrMalformed
	}
	var raw [3][]byte
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		raw[i] = b
	}
	salt, iv, data := raw[0], raw[1], raw[2]
	if len(iv) != aes.BlockSize || len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", ErrMalformed
	}

	block, err := aes.NewCipher(c.key(salt))
	if err != nil {
		return "", err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrBadPadding
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}
