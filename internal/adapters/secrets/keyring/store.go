package keyring

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	gokeyring "github.com/zalando/go-keyring"
)

const (
	DefaultService = "terms-client"

	// Some platforms cap a single credential entry (Windows at 2560 bytes),
	// so larger values are spread over numbered entries.
	defaultChunkSize = 2048
	manifestPrefix   = "chunks:"
)

// Store keeps secrets in the OS-native secret manager.
type Store struct {
	service   string
	chunkSize int
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore(service string) *Store {
	if strings.TrimSpace(service) == "" {
		service = DefaultService
	}
	return &Store{service: service, chunkSize: defaultChunkSize}
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.deleteChunks(key); err != nil {
		return err
	}

	if len(value) <= s.chunkSize {
		if err := gokeyring.Set(s.service, key, string(value)); err != nil {
			return fmt.Errorf("keyring put %q: %w", key, err)
		}
		return nil
	}

	count := 0
	for start := 0; start < len(value); start += s.chunkSize {
		end := min(start+s.chunkSize, len(value))
		if err := gokeyring.Set(s.service, chunkKey(key, count), string(value[start:end])); err != nil {
			return fmt.Errorf("keyring put %q part %d: %w", key, count, err)
		}
		count++
	}
	if err := gokeyring.Set(s.service, key, manifestPrefix+strconv.Itoa(count)); err != nil {
		return fmt.Errorf("keyring put %q manifest: %w", key, err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, err := s.get(key)
	if err != nil {
		return nil, err
	}

	count, ok := parseManifest(value)
	if !ok {
		return []byte(value), nil
	}

	out := make([]byte, 0, count*s.chunkSize)
	for i := range count {
		part, err := s.get(chunkKey(key, i))
		if err != nil {
			clear(out)
			return nil, fmt.Errorf("keyring get %q part %d: %w", key, i, err)
		}
		out = append(out, part...)
	}

	return out, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.deleteChunks(key); err != nil {
		return err
	}

	err := gokeyring.Delete(s.service, key)
	if err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %q: %w", key, err)
	}

	return nil
}

func (s *Store) get(key string) (string, error) {
	value, err := gokeyring.Get(s.service, key)
	if errors.Is(err, gokeyring.ErrNotFound) {
		return "", fmt.Errorf("keyring %q: %w", key, domain.ErrSecretNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) deleteChunks(key string) error {
	value, err := gokeyring.Get(s.service, key)
	if errors.Is(err, gokeyring.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("keyring get %q: %w", key, err)
	}

	count, ok := parseManifest(value)
	if !ok {
		return nil
	}
	for i := range count {
		err := gokeyring.Delete(s.service, chunkKey(key, i))
		if err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
			return fmt.Errorf("keyring delete %q part %d: %w", key, i, err)
		}
	}
	return nil
}

func chunkKey(key string, i int) string {
	return key + "#" + strconv.Itoa(i)
}

func parseManifest(value string) (int, bool) {
	raw, ok := strings.CutPrefix(value, manifestPrefix)
	if !ok {
		return 0, false
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count <= 0 {
		return 0, false
	}
	return count, true
}
