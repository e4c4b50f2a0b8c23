package pass

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"github.com/bnema/terms-cli/internal/secret"
)

var ErrUnavailable = errors.New("pass command unavailable")

type runFunc func(ctx context.Context, input []byte, args ...string) (stdout []byte, stderr string, err error)

// Store keeps secrets in the pass password store.
type Store struct {
	run runFunc
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{run: runPassCommand}
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	input := make([]byte, 0, len(value)+1)
	input = append(input, value...)
	input = append(input, '\n')
	defer secret.Wipe(input)

	_, stderr, err := s.run(ctx, input, "insert", "-m", "-f", key)
	if err != nil {
		return formatError("put", key, err, stderr)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stdout, stderr, err := s.run(ctx, nil, "show", key)
	if err != nil {
		secret.Wipe(stdout)
		if isNotInStore(stderr) {
			return nil, fmt.Errorf("pass get %q: %w", key, domain.ErrSecretNotFound)
		}
		return nil, formatError("get", key, err, stderr)
	}

	stdout = bytes.TrimSuffix(stdout, []byte("\n"))
	stdout = bytes.TrimSuffix(stdout, []byte("\r"))

	return stdout, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, stderr, err := s.run(ctx, nil, "rm", "-f", key)
	if err != nil {
		if isNotInStore(stderr) {
			return nil
		}
		return formatError("delete", key, err, stderr)
	}

	return nil
}

func isNotInStore(stderr string) bool {
	return strings.Contains(stderr, "is not in the password store")
}

func runPassCommand(ctx context.Context, input []byte, args ...string) ([]byte, string, error) {
	path, err := exec.LookPath("pass")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, "", ErrUnavailable
		}
		return nil, "", fmt.Errorf("locate pass command: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	if len(input) > 0 {
		cmd.Stdin = bytes.NewReader(input)
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	return stdout.Bytes(), strings.TrimSpace(stderr.String()), err
}

func formatError(op string, key string, err error, stderr string) error {
	if stderr == "" {
		return fmt.Errorf("pass %s %q: %w", op, key, err)
	}

	return fmt.Errorf("pass %s %q: %w: %s", op, key, err, stderr)
}
