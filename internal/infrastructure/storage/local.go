package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Errors
var (
	ErrInvalidKey   = errors.New("invalid file key")
	ErrInvalidToken = errors.New("invalid or expired download token")
	ErrFileNotFound = errors.New("file not found")
)

// Config configures the local file store
type Config struct {
	RootDir       string
	BaseURL       string // public API prefix, e.g. http://localhost:8020/api/v1
	SigningSecret string
}

// downloadClaims binds a token to one file key
type downloadClaims struct {
	Key string `json:"key"`
	jwt.RegisteredClaims
}

// LocalFileStore keeps files on local disk and signs download links with
// HS256 tokens
type LocalFileStore struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewLocalFileStore creates the root directory if needed
func NewLocalFileStore(cfg Config) (*LocalFileStore, error) {
	if cfg.SigningSecret == "" {
		return nil, errors.New("signing secret is required")
	}
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}
	return &LocalFileStore{
		root:    cfg.RootDir,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secret:  []byte(cfg.SigningSecret),
		now:     time.Now,
	}, nil
}

// resolve maps a key to a path under root, rejecting traversal
func (s *LocalFileStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || clean[1:] != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean[1:])), nil
}

// Write streams a file under key through write. The previous content stays
// in place until write returns and the file is renamed over it.
func (s *LocalFileStore) Write(ctx context.Context, key string, write func(io.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	buf := bufio.NewWriter(tmp)
	if err := write(buf); err != nil {
		tmp.Close()
		return err
	}
	if err := buf.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to store file: %w", err)
	}
	return nil
}

// Open returns a reader for key. The caller closes it.
func (s *LocalFileStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// SignedURL returns a link to key valid for ttl
func (s *LocalFileStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return "", time.Time{}, err
	}
	if _, err := s.resolve(key); err != nil {
		return "", time.Time{}, err
	}
	now := s.now().UTC()
	expiresAt := now.Add(ttl).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, downloadClaims{
		Key: strings.TrimPrefix(key, "/"),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	link := fmt.Sprintf("%s/files/%s?token=%s", s.baseURL, strings.TrimPrefix(key, "/"), url.QueryEscape(signed))
	return link, expiresAt, nil
}

// Verify checks that token is valid, unexpired and issued for key
func (s *LocalFileStore) Verify(token, key string) error {
	claims := &downloadClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	if claims.Key != strings.TrimPrefix(key, "/") {
		return ErrInvalidToken
	}
	return nil
}
