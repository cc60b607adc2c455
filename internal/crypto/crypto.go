// Package crypto seals source credentials at rest. The sealed form is
// self-describing: a version tag, the PBKDF2 salt, the GCM nonce, and the
// ciphertext (with its auth tag) travel together in one base64 payload, so
// rotation of the derivation parameters stays possible.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

const (
	// formatVersion tags the sealed payload layout.
	formatVersion byte = 1

	// saltSize is the PBKDF2 salt length in bytes.
	saltSize = 16

	// keySize selects AES-256.
	keySize = 32

	// iterations is the PBKDF2 work factor.
	iterations = 100_000
)

// Seal encrypts plaintext under a key derived from passphrase. Every call
// draws a fresh salt and nonce, so equal inputs yield distinct payloads.
func Seal(plaintext, passphrase string) (string, error) {
	if plaintext == "" {
		return "", fault.New(fault.KindValidation, "plaintext must not be empty")
	}

	if passphrase == "" {
		return "", fault.New(fault.KindValidation, "passphrase must not be empty")
	}

	salt := make([]byte, saltSize)
	if _, saltErr := io.ReadFull(rand.Reader, salt); saltErr != nil {
		return "", fmt.Errorf("draw salt: %w", saltErr)
	}

	gcm, gcmErr := newGCM(passphrase, salt)
	if gcmErr != nil {
		return "", gcmErr
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, nonceErr := io.ReadFull(rand.Reader, nonce); nonceErr != nil {
		return "", fmt.Errorf("draw nonce: %w", nonceErr)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	payload := make([]byte, 0, 1+saltSize+len(nonce)+len(sealed))
	payload = append(payload, formatVersion)
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)

	return base64.StdEncoding.EncodeToString(payload), nil
}

// Open decrypts a payload produced by Seal.
func Open(sealed, passphrase string) (string, error) {
	if sealed == "" {
		return "", fault.New(fault.KindValidation, "sealed payload must not be empty")
	}

	payload, decodeErr := base64.StdEncoding.DecodeString(sealed)
	if decodeErr != nil {
		return "", fmt.Errorf("decode payload: %w", decodeErr)
	}

	if len(payload) < 1+saltSize {
		return "", fault.New(fault.KindValidation, "sealed payload is truncated")
	}

	if payload[0] != formatVersion {
		return "", fault.Newf(fault.KindValidation, "unsupported sealed payload version %d", payload[0])
	}

	salt := payload[1 : 1+saltSize]

	gcm, gcmErr := newGCM(passphrase, salt)
	if gcmErr != nil {
		return "", gcmErr
	}

	rest := payload[1+saltSize:]
	if len(rest) < gcm.NonceSize() {
		return "", fault.New(fault.KindValidation, "sealed payload is truncated")
	}

	nonce := rest[:gcm.NonceSize()]
	ciphertext := rest[gcm.NonceSize():]

	plaintext, openErr := gcm.Open(nil, nonce, ciphertext, nil)
	if openErr != nil {
		return "", fault.Wrap(fault.KindPermanent, "open sealed payload", openErr)
	}

	return string(plaintext), nil
}

// newGCM derives the AES-256 key for the given salt and builds the AEAD.
func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)

	block, cipherErr := aes.NewCipher(key)
	if cipherErr != nil {
		return nil, fmt.Errorf("create cipher: %w", cipherErr)
	}

	gcm, gcmErr := cipher.NewGCM(block)
	if gcmErr != nil {
		return nil, fmt.Errorf("create GCM: %w", gcmErr)
	}

	return gcm, nil
}

// DefaultKeyEnvVar names the environment variable the EnvKeyProvider reads.
const DefaultKeyEnvVar = "NEWSFANG_CREDENTIALS_KEY"

// KeyProvider supplies the sealing passphrase.
type KeyProvider interface {
	Key() (string, error)
}

// EnvKeyProvider reads the passphrase from the environment.
type EnvKeyProvider struct {
	// Var overrides the environment variable name. Empty means
	// DefaultKeyEnvVar.
	Var string
}

// Key returns the passphrase from the configured environment variable.
func (p EnvKeyProvider) Key() (string, error) {
	name := p.Var
	if name == "" {
		name = DefaultKeyEnvVar
	}

	key := os.Getenv(name)
	if key == "" {
		return "", fault.Newf(fault.KindValidation, "environment variable %s is not set", name)
	}

	return key, nil
}

// StaticKeyProvider supplies a fixed passphrase, mainly for tests.
type StaticKeyProvider string

// Key returns the fixed passphrase.
func (p StaticKeyProvider) Key() (string, error) {
	if p == "" {
		return "", fault.New(fault.KindValidation, "static key must not be empty")
	}

	return string(p), nil
}
