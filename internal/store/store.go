// Package store wraps a listable, fetchable blob store behind the key
// layout the rest of the system speaks: full store paths that include the
// bucket name as their first segment.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // local driver, used in tests and file mode
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver
	"golang.org/x/sync/errgroup"

	"github.com/joyprojects/goes-fetch/internal/metrics"
	"github.com/joyprojects/goes-fetch/internal/planner"
)

// ErrStoreUnavailable wraps listing/fetch backend failures. The caller gets
// it immediately; no retries happen inside this package.
var ErrStoreUnavailable = errors.New("object store unavailable")

// Config configures the store backend.
type Config struct {
	Backend string // "s3" | "gcs" | "file"

	// Bucket is the bucket name for s3/gcs backends, e.g. "noaa-goes16".
	Bucket string

	// S3 (also works for B2, R2, MinIO)
	S3Endpoint string
	S3Region   string

	// File backend root; a directory containing bucket-named subdirectories.
	LocalDir string
}

// Store is a thin bucket wrapper. Safe for concurrent use.
type Store struct {
	bucket *blob.Bucket

	// trim is stripped from full store paths before they reach the bucket
	// driver, and re-attached to listed keys, so callers always see paths
	// with the bucket segment included.
	trim string

	log *slog.Logger
}

// Open creates a store backend based on configuration.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Backend {
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket required for s3 backend")
		}
		bucketURL := fmt.Sprintf("s3://%s", cfg.Bucket)
		params := url.Values{}
		if cfg.S3Region != "" {
			params.Set("region", cfg.S3Region)
		}
		if cfg.S3Endpoint != "" {
			params.Set("endpoint", cfg.S3Endpoint)
			params.Set("s3ForcePathStyle", "true")
		}
		if len(params) > 0 {
			bucketURL = bucketURL + "?" + params.Encode()
		}
		bucket, err := blob.OpenBucket(ctx, bucketURL)
		if err != nil {
			return nil, fmt.Errorf("open S3 bucket %s: %w", cfg.Bucket, err)
		}
		return newStore(bucket, cfg.Bucket+"/"), nil

	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket required for gcs backend")
		}
		bucket, err := blob.OpenBucket(ctx, fmt.Sprintf("gs://%s", cfg.Bucket))
		if err != nil {
			return nil, fmt.Errorf("open GCS bucket %s: %w", cfg.Bucket, err)
		}
		return newStore(bucket, cfg.Bucket+"/"), nil

	case "file":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for file backend")
		}
		abs, err := filepath.Abs(cfg.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", cfg.LocalDir, err)
		}
		bucket, err := blob.OpenBucket(ctx, "file://"+abs)
		if err != nil {
			return nil, fmt.Errorf("open file bucket %s: %w", abs, err)
		}
		// The file root contains bucket-named directories, so paths pass
		// through untrimmed.
		return newStore(bucket, ""), nil

	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

func newStore(bucket *blob.Bucket, trim string) *Store {
	return &Store{
		bucket: bucket,
		trim:   trim,
		log:    slog.With("component", "store"),
	}
}

// Close releases the bucket connection.
func (s *Store) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

// List issues one listing pattern: a prefix listing filtered client-side by
// the pattern's glob. The store is eventually consistent; an object missing
// from a listing is "not found yet", not an error.
func (s *Store) List(ctx context.Context, pattern planner.Pattern) ([]string, error) {
	prefix := strings.TrimPrefix(pattern.Prefix(), s.trim)

	if m := metrics.Get(); m != nil {
		m.IncListings()
	}

	var keys []string
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: list %s: %v", ErrStoreUnavailable, prefix, err)
		}
		if obj.IsDir {
			continue
		}
		full := s.trim + obj.Key
		if pattern.Match(full) {
			keys = append(keys, full)
		}
	}

	if m := metrics.Get(); m != nil {
		m.AddKeysListed(float64(len(keys)))
	}
	return keys, nil
}

// ListAll issues every pattern concurrently, then flattens, deduplicates,
// and sorts the discovered keys. Listing calls are independent and
// read-only, so they run in parallel; results merge under a lock at join.
func (s *Store) ListAll(ctx context.Context, patterns []planner.Pattern) ([]string, error) {
	var mu sync.Mutex
	seen := make(map[string]struct{})

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range patterns {
		p := p
		g.Go(func() error {
			keys, err := s.List(ctx, p)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, k := range keys {
				seen[k] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)

	s.log.Debug("listing complete", "patterns", len(patterns), "keys", len(out))
	return out, nil
}

// Download transfers one object to localPath and returns the byte count.
// The write is atomic (temp file + rename) and the destination directory is
// created race-safely. A destination already present with the remote's size
// is skipped, making re-runs idempotent.
func (s *Store) Download(ctx context.Context, key, localPath string) (int64, error) {
	bucketKey := strings.TrimPrefix(key, s.trim)

	attrs, err := s.bucket.Attributes(ctx, bucketKey)
	if err != nil {
		return 0, fmt.Errorf("attributes for %s: %w", key, err)
	}

	if info, err := os.Stat(localPath); err == nil && info.Size() == attrs.Size {
		s.log.Debug("skipping download, destination verified", "key", key)
		return info.Size(), nil
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return 0, fmt.Errorf("create directory %s: %w", filepath.Dir(localPath), err)
	}

	r, err := s.bucket.NewReader(ctx, bucketKey, nil)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", key, err)
	}
	defer r.Close()

	tempPath := localPath + ".tmp." + uuid.New().String()
	f, err := os.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("create temp file %s: %w", tempPath, err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tempPath)
		return 0, fmt.Errorf("copy %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("close temp file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, localPath); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("rename %s to %s: %w", tempPath, localPath, err)
	}

	return n, nil
}

// Exists checks whether an object is present in the store.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, strings.TrimPrefix(key, s.trim))
}
