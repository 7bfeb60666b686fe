package roster

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for master key derivation.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	argonKeyLen  = 32 // AES-256
	saltLen      = 16
	dekLen       = 32 // AES-256
	nonceLen     = 12 // AES-GCM standard nonce size
)

// verificationMagic is a known plaintext encrypted with the master key to
// verify passphrase correctness across restarts.
var verificationMagic = []byte("fleetbridge-roster-v1")

// ErrSealed is returned when a credential operation runs before the sealer
// has been bootstrapped with a passphrase.
var ErrSealed = errors.New("credential store is sealed")

// ErrWrongPassphrase is returned when the configured passphrase does not
// match the persisted master key record.
var ErrWrongPassphrase = errors.New("wrong roster passphrase")

// Sealer encrypts SSH credentials at rest. Each secret gets its own data
// encryption key wrapped by a master key derived from the configured
// passphrase, so a future passphrase change only has to rewrap the small
// per-device keys. All methods are safe for concurrent use.
type Sealer struct {
	mu  sync.RWMutex
	kek []byte // nil while sealed
}

// NewSealer creates a Sealer in sealed state.
func NewSealer() *Sealer {
	return &Sealer{}
}

// Bootstrap derives the master key from the passphrase. On first run (rec is
// nil) it generates a fresh salt and verification blob and returns them for
// persistence with created=true. On subsequent runs it verifies the derived
// key against the stored blob and returns ErrWrongPassphrase on mismatch.
func (s *Sealer) Bootstrap(passphrase string, rec *MasterKeyRecord) (salt, verification []byte, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec == nil {
		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, false, fmt.Errorf("generate salt: %w", err)
		}
		kek := deriveKey(passphrase, salt)
		verification, err = encrypt(kek, verificationMagic)
		if err != nil {
			zeroBytes(kek)
			return nil, nil, false, err
		}
		s.kek = kek
		return salt, verification, true, nil
	}

	kek := deriveKey(passphrase, rec.Salt)
	plain, err := decrypt(kek, rec.Verification)
	if err != nil || string(plain) != string(verificationMagic) {
		zeroBytes(kek)
		return nil, nil, false, ErrWrongPassphrase
	}
	s.kek = kek
	return rec.Salt, rec.Verification, false, nil
}

// Sealed reports whether the master key is absent from memory.
func (s *Sealer) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kek == nil
}

// Seal zeroes the master key and returns the Sealer to sealed state.
func (s *Sealer) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kek != nil {
		zeroBytes(s.kek)
		s.kek = nil
	}
}

// SealSecret encrypts a secret under a fresh data encryption key and wraps
// that key with the master key. Both blobs must be persisted together.
func (s *Sealer) SealSecret(plaintext []byte) (blob, wrappedKey []byte, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.kek == nil {
		return nil, nil, ErrSealed
	}

	dek := make([]byte, dekLen)
	if _, err := rand.Read(dek); err != nil {
		return nil, nil, fmt.Errorf("generate data key: %w", err)
	}
	defer zeroBytes(dek)

	blob, err = encrypt(dek, plaintext)
	if err != nil {
		return nil, nil, err
	}
	wrappedKey, err = encrypt(s.kek, dek)
	if err != nil {
		return nil, nil, err
	}
	return blob, wrappedKey, nil
}

// OpenSecret unwraps the data encryption key and decrypts the secret blob.
func (s *Sealer) OpenSecret(blob, wrappedKey []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.kek == nil {
		return nil, ErrSealed
	}

	dek, err := decrypt(s.kek, wrappedKey)
	if err != nil {
		return nil, fmt.Errorf("unwrap data key: %w", err)
	}
	defer zeroBytes(dek)

	return decrypt(dek, blob)
}

// deriveKey derives a 32-byte key from a passphrase and salt using Argon2id.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// encrypt performs AES-256-GCM encryption. Returns nonce || ciphertext+tag.
func encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt performs AES-256-GCM decryption. Expects nonce || ciphertext+tag.
func decrypt(key, data []byte) ([]byte, error) {
	if len(data) < nonceLen {
		return nil, errors.New("ciphertext too short")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, data[:nonceLen], data[nonceLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// zeroBytes overwrites a byte slice with zeros.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
