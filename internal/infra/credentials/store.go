package credentials

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"

	"webui/internal/infra"
	"webui/internal/storage"
)

const (
	TokenFile = ".api_token"
	KeyFile   = ".token_key"

	sealedPrefix  = "sb1:"
	encodedPrefix = "b64:"
)

// ErrEmptyToken is returned when saving a blank token.
var ErrEmptyToken = errors.New("credentials: token is required")

// SaveAction reports what HandleSave did.
type SaveAction int

const (
	ActionNone SaveAction = iota
	ActionSaved
	ActionSaveFailed
	ActionDeleted
)

// Store keeps the API token in a token file plus a sibling key file. When
// encryption is available the token is sealed with nacl/secretbox, otherwise
// it is only base64 encoded.
type Store struct {
	files   *storage.FileStore
	encrypt bool
	random  io.Reader
	logger  *infra.Logger
	mu      sync.RWMutex
}

// NewStore builds a store over files. The capability flag decides whether
// new tokens are sealed.
func NewStore(files *storage.FileStore, caps infra.Capabilities, logger *infra.Logger) *Store {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Store{files: files, encrypt: caps.EncryptionAvailable, random: rand.Reader, logger: logger}
}

// Encrypted reports whether newly saved tokens are sealed.
func (s *Store) Encrypted() bool { return s.encrypt }

// Save persists token, creating the key file when it does not exist yet.
func (s *Store) Save(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.ensureKey(ctx)
	if err != nil {
		return err
	}

	var payload string
	if s.encrypt {
		var nonce [24]byte
		if _, err := io.ReadFull(s.random, nonce[:]); err != nil {
			return fmt.Errorf("credentials: nonce: %w", err)
		}
		sealed := secretbox.Seal(nonce[:], []byte(token), &nonce, key)
		payload = sealedPrefix + base64.URLEncoding.EncodeToString(sealed)
	} else {
		payload = encodedPrefix + base64.StdEncoding.EncodeToString([]byte(token))
	}

	if _, err := s.files.Write(ctx, TokenFile, []byte(payload)); err != nil {
		return fmt.Errorf("credentials: write token: %w", err)
	}
	s.logger.Info().Bool("encrypted", s.encrypt).Msg("api token saved")
	return nil
}

// ensureKey makes sure a key file exists for the current mode and returns
// the sealing key in encryption mode. A key file not tagged as a sealing key
// is never used to seal; a fresh random key replaces it. In plain mode an
// existing key file is kept so earlier sealed tokens still open.
func (s *Store) ensureKey(ctx context.Context) (*[32]byte, error) {
	existing, err := s.files.Read(ctx, KeyFile)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("credentials: read key: %w", err)
	}

	if s.encrypt {
		if key, ok := parseSealingKey(existing); ok {
			return key, nil
		}
		var key [32]byte
		if _, err := io.ReadFull(s.random, key[:]); err != nil {
			return nil, fmt.Errorf("credentials: generate key: %w", err)
		}
		if _, err := s.files.Write(ctx, KeyFile, []byte(sealedPrefix+base64.StdEncoding.EncodeToString(key[:]))); err != nil {
			return nil, fmt.Errorf("credentials: write key: %w", err)
		}
		return &key, nil
	}

	if err == nil {
		return nil, nil
	}
	sum := sha256.Sum256([]byte(s.files.BasePath() + "modelscope_api_key"))
	if _, err := s.files.Write(ctx, KeyFile, []byte(encodedPrefix+base64.StdEncoding.EncodeToString(sum[:]))); err != nil {
		return nil, fmt.Errorf("credentials: write key: %w", err)
	}
	return nil, nil
}

// parseSealingKey accepts only key files written in encryption mode.
func parseSealingKey(file []byte) (*[32]byte, bool) {
	v := strings.TrimSpace(string(file))
	if !strings.HasPrefix(v, sealedPrefix) {
		return nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v, sealedPrefix))
	if err != nil || len(raw) != 32 {
		return nil, false
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, true
}

// Load returns the saved token, or "" when none is saved or it cannot be
// recovered.
func (s *Store) Load(ctx context.Context) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, err := s.files.Read(ctx, TokenFile)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("read api token failed")
		}
		return ""
	}

	token, err := s.decode(ctx, string(payload))
	if err != nil {
		s.logger.Warn().Err(err).Msg("decode api token failed")
		return ""
	}
	return token
}

func (s *Store) decode(ctx context.Context, payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	switch {
	case strings.HasPrefix(payload, encodedPrefix):
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(payload, encodedPrefix))
		if err != nil {
			return "", fmt.Errorf("credentials: decode token: %w", err)
		}
		return string(raw), nil
	case strings.HasPrefix(payload, sealedPrefix):
		key, err := s.files.Read(ctx, KeyFile)
		if err != nil {
			return "", fmt.Errorf("credentials: read key: %w", err)
		}
		secret, ok := parseSealingKey(key)
		if !ok {
			return "", errors.New("credentials: invalid key file")
		}
		sealed, err := base64.URLEncoding.DecodeString(strings.TrimPrefix(payload, sealedPrefix))
		if err != nil || len(sealed) < 24 {
			return "", errors.New("credentials: invalid token file")
		}
		var nonce [24]byte
		copy(nonce[:], sealed[:24])
		opened, ok := secretbox.Open(nil, sealed[24:], &nonce, secret)
		if !ok {
			return "", errors.New("credentials: token does not open with key")
		}
		return string(opened), nil
	default:
		return "", errors.New("credentials: unknown token format")
	}
}

// Saved reports whether a token file exists.
func (s *Store) Saved(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ok, err := s.files.Exists(ctx, TokenFile)
	return err == nil && ok
}

// Delete removes the token and key files. Missing files are not errors.
func (s *Store) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.files.Remove(ctx, TokenFile); err != nil {
		return fmt.Errorf("credentials: delete token: %w", err)
	}
	if err := s.files.Remove(ctx, KeyFile); err != nil {
		return fmt.Errorf("credentials: delete key: %w", err)
	}
	s.logger.Info().Msg("api token deleted")
	return nil
}

// HandleSave applies the "remember token" toggle: save when checked and the
// token is not blank, delete when unchecked, otherwise do nothing.
func (s *Store) HandleSave(ctx context.Context, token string, save bool) SaveAction {
	switch {
	case save && strings.TrimSpace(token) != "":
		if err := s.Save(ctx, token); err != nil {
			s.logger.Error().Err(err).Msg("save api token failed")
			return ActionSaveFailed
		}
		return ActionSaved
	case !save:
		if err := s.Delete(ctx); err != nil {
			s.logger.Error().Err(err).Msg("delete api token failed")
		}
		return ActionDeleted
	default:
		return ActionNone
	}
}
