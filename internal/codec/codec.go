// Package codec encrypts artifact bytes before they reach a storage provider
// and decrypts them on the way back. It keeps data opaque at rest; it does
// not detect tampering.
package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20"
)

// Supported algorithm identifiers.
const (
	AES128ECB = "aes-128-ecb"
	AES192ECB = "aes-192-ecb"
	AES256ECB = "aes-256-ecb"
	AES128CBC = "aes-128-cbc"
	AES256CBC = "aes-256-cbc"
	AES256CTR = "aes-256-ctr"
	ChaCha20  = "chacha20"
)

var (
	ErrUnknownAlgorithm = errors.New("unknown encryption algorithm")
	ErrInvalidKey       = errors.New("invalid encryption key")
	ErrInvalidIV        = errors.New("invalid initialization vector")
	ErrInvalidPadding   = errors.New("invalid padding")
)

type mode int

const (
	modeECB mode = iota
	modeCBC
	modeCTR
	modeChaCha
)

type suite struct {
	keySize int
	ivSize  int
	mode    mode
}

var algorithms = map[string]suite{
	AES128ECB: {keySize: 16, mode: modeECB},
	AES192ECB: {keySize: 24, mode: modeECB},
	AES256ECB: {keySize: 32, mode: modeECB},
	AES128CBC: {keySize: 16, ivSize: aes.BlockSize, mode: modeCBC},
	AES256CBC: {keySize: 32, ivSize: aes.BlockSize, mode: modeCBC},
	AES256CTR: {keySize: 32, ivSize: aes.BlockSize, mode: modeCTR},
	ChaCha20:  {keySize: chacha20.KeySize, ivSize: chacha20.NonceSize, mode: modeChaCha},
}

// Algorithms lists the accepted algorithm identifiers.
func Algorithms() []string {
	return []string{AES128ECB, AES192ECB, AES256ECB, AES128CBC, AES256CBC, AES256CTR, ChaCha20}
}

// Codec is a symmetric cipher keyed by a process-wide secret. Output is
// deterministic for a fixed key and IV. A missing IV is treated as all zero
// bytes. Codec is immutable and safe for concurrent use.
type Codec struct {
	algorithm string
	suite     suite
	key       []byte
	iv        []byte
	block     cipher.Block
}

// New builds a codec. key and iv are used as raw bytes and must match the
// sizes required by algorithm.
func New(algorithm, key string, iv []byte) (*Codec, error) {
	name := strings.ToLower(strings.TrimSpace(algorithm))
	s, ok := algorithms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
	if len(key) != s.keySize {
		return nil, fmt.Errorf("%w: %s requires a %d byte key, got %d", ErrInvalidKey, name, s.keySize, len(key))
	}
	if s.ivSize == 0 && len(iv) > 0 {
		return nil, fmt.Errorf("%w: %s does not take an iv", ErrInvalidIV, name)
	}
	if s.ivSize > 0 {
		switch {
		case len(iv) == 0:
			iv = make([]byte, s.ivSize)
		case len(iv) != s.ivSize:
			return nil, fmt.Errorf("%w: %s requires a %d byte iv, got %d", ErrInvalidIV, name, s.ivSize, len(iv))
		}
	}
	c := &Codec{
		algorithm: name,
		suite:     s,
		key:       []byte(key),
		iv:        bytes.Clone(iv),
	}
	if s.mode != modeChaCha {
		block, err := aes.NewCipher(c.key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		c.block = block
	}
	return c, nil
}

// Algorithm returns the normalized algorithm identifier.
func (c *Codec) Algorithm() string {
	return c.algorithm
}

// Encrypt returns the ciphertext of plain. plain is not modified.
func (c *Codec) Encrypt(plain []byte) ([]byte, error) {
	switch c.suite.mode {
	case modeECB:
		padded := pad(plain, aes.BlockSize)
		out := make([]byte, len(padded))
		for i := 0; i < len(padded); i += aes.BlockSize {
			c.block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
		}
		return out, nil
	case modeCBC:
		padded := pad(plain, aes.BlockSize)
		out := make([]byte, len(padded))
		cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
		return out, nil
	default:
		return c.stream(plain)
	}
}

// Decrypt reverses Encrypt.
func (c *Codec) Decrypt(ciphertext []byte) ([]byte, error) {
	switch c.suite.mode {
	case modeECB:
		if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
			return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext))
		}
		out := make([]byte, len(ciphertext))
		for i := 0; i < len(ciphertext); i += aes.BlockSize {
			c.block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
		}
		return unpad(out, aes.BlockSize)
	case modeCBC:
		if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
			return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext))
		}
		out := make([]byte, len(ciphertext))
		cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, ciphertext)
		return unpad(out, aes.BlockSize)
	default:
		return c.stream(ciphertext)
	}
}

func (c *Codec) stream(in []byte) ([]byte, error) {
	out := make([]byte, len(in))
	switch c.suite.mode {
	case modeCTR:
		cipher.NewCTR(c.block, c.iv).XORKeyStream(out, in)
	case modeChaCha:
		s, err := chacha20.NewUnauthenticatedCipher(c.key, c.iv)
		if err != nil {
			return nil, fmt.Errorf("chacha20: %w", err)
		}
		s.XORKeyStream(out, in)
	}
	return out, nil
}

// pad applies PKCS#7 padding. A full block is appended when len(b) is
// already aligned, so empty input encrypts to one block.
func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrInvalidPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrInvalidPadding
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrInvalidPadding
		}
	}
	return b[:len(b)-n], nil
}
