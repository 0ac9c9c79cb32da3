package cipher

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrNegativeVersion = errors.New("key version must be >= 0")
	ErrEmptySecret     = errors.New("master secret must not be empty")
)

// Ring derives one symmetric key per version from a master secret with
// HKDF-SHA256 and seals payloads with XChaCha20-Poly1305. Handlers are
// cached per version; resolving a historical version just derives its key
// again.
type Ring struct {
	mu       sync.RWMutex
	secret   []byte
	current  int
	handlers map[int]Handler

	// refresh, when set, re-fetches settings from wherever the application
	// keeps them. The default keeps the ring as-is.
	refresh func(ctx context.Context) (secret string, version int, err error)
}

// RingOption configures a Ring.
type RingOption func(*Ring)

// WithRefreshFunc installs the settings fetcher invoked by Refresh.
func WithRefreshFunc(fn func(ctx context.Context) (string, int, error)) RingOption {
	return func(r *Ring) {
		r.refresh = fn
	}
}

// NewRing creates a key ring for the given master secret and current version.
func NewRing(secret string, currentVersion int, opts ...RingOption) (*Ring, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if currentVersion < 0 {
		return nil, ErrNegativeVersion
	}

	r := &Ring{
		secret:   []byte(secret),
		current:  currentVersion,
		handlers: make(map[int]Handler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ForVersion returns the handler for one key version.
func (r *Ring) ForVersion(version int) (Handler, error) {
	if version < 0 {
		return nil, ErrNegativeVersion
	}

	r.mu.RLock()
	h, ok := r.handlers[version]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handlers[version]; ok {
		return h, nil
	}

	key, err := r.deriveKey(version)
	if err != nil {
		return nil, err
	}
	h = &aeadHandler{key: key}
	r.handlers[version] = h
	return h, nil
}

// CurrentVersion returns the version outbound payloads are sealed under.
func (r *Ring) CurrentVersion() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Refresh re-fetches encryption settings via the configured fetcher. A ring
// without a fetcher is static and Refresh is a no-op.
func (r *Ring) Refresh(ctx context.Context) error {
	if r.refresh == nil {
		return nil
	}

	secret, version, err := r.refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh encryption settings: %w", err)
	}
	if secret == "" {
		return ErrEmptySecret
	}
	if version < 0 {
		return ErrNegativeVersion
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if string(r.secret) != secret {
		// New master secret invalidates every cached handler.
		r.secret = []byte(secret)
		r.handlers = make(map[int]Handler)
	}
	r.current = version
	return nil
}

// deriveKey expands the master secret into the per-version AEAD key.
// Callers hold at least a read lock on r.mu.
func (r *Ring) deriveKey(version int) ([]byte, error) {
	info := fmt.Sprintf("channel-key-v%d", version)
	kdf := hkdf.New(sha256.New, r.secret, nil, []byte(info))

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive key v%d: %w", version, err)
	}
	return key, nil
}

// aeadHandler seals with XChaCha20-Poly1305 and encodes nonce||ciphertext
// as standard base64.
type aeadHandler struct {
	key []byte
}

func (h *aeadHandler) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(h.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (h *aeadHandler) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	aead, err := chacha20poly1305.NewX(h.key)
	if err != nil {
		return "", err
	}

	if len(raw) < aead.NonceSize() {
		return "", errors.New("ciphertext shorter than nonce")
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}
