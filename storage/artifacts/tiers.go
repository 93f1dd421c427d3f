// Package artifacts persists run artifacts across the two storage
// tiers: the runtime area a run writes into, and the final area reads
// go to once the run is promoted.
package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LCLUCam/VULCAN/storage/objectstore"
)

// Tiers routes artifact reads and writes to the right bucket. A run
// only ever writes to the runtime tier; promotion copies server-side.
type Tiers struct {
	store         objectstore.Store
	runtimeBucket string
	finalBucket   string
	logger        *slog.Logger

	promoteRetries uint64
	newBackOff     func() backoff.BackOff
}

func NewTiers(store objectstore.Store, runtimeBucket, finalBucket string, logger *slog.Logger) (*Tiers, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	runtimeBucket = strings.TrimSpace(runtimeBucket)
	finalBucket = strings.TrimSpace(finalBucket)
	if runtimeBucket == "" || finalBucket == "" {
		return nil, errors.New("runtime and final buckets are required")
	}
	if runtimeBucket == finalBucket {
		return nil, errors.New("runtime and final buckets must differ")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiers{
		store:          store,
		runtimeBucket:  runtimeBucket,
		finalBucket:    finalBucket,
		logger:         logger,
		promoteRetries: 4,
		newBackOff:     func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}, nil
}

// PutRuntime writes one artifact to the runtime tier and returns the
// SHA-256 of its content, recorded so downstream consumers can verify
// integrity.
func (t *Tiers) PutRuntime(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if t == nil || t.store == nil {
		return "", errors.New("artifact tiers not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return "", errors.New("artifact key is required")
	}
	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])
	if err := t.store.Put(ctx, t.runtimeBucket, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return "", err
	}
	t.logger.Debug("runtime artifact stored",
		slog.String("key", key),
		slog.String("sha256", digest))
	return digest, nil
}

func (t *Tiers) GetRuntime(ctx context.Context, key string) ([]byte, error) {
	return t.get(ctx, t.runtimeBucket, key)
}

func (t *Tiers) GetFinal(ctx context.Context, key string) ([]byte, error) {
	return t.get(ctx, t.finalBucket, key)
}

func (t *Tiers) StatFinal(ctx context.Context, key string) (objectstore.ObjectInfo, error) {
	if t == nil || t.store == nil {
		return objectstore.ObjectInfo{}, errors.New("artifact tiers not initialized")
	}
	return t.store.Stat(ctx, t.finalBucket, key)
}

func (t *Tiers) get(ctx context.Context, bucket, key string) ([]byte, error) {
	if t == nil || t.store == nil {
		return nil, errors.New("artifact tiers not initialized")
	}
	body, _, err := t.store.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// CopyFinalToRuntime seeds the runtime tier of a new run with a prior
// run's promoted artifact, so reused columns get their output without a
// solver invocation.
func (t *Tiers) CopyFinalToRuntime(ctx context.Context, srcKey, dstKey string) error {
	if t == nil || t.store == nil {
		return errors.New("artifact tiers not initialized")
	}
	return t.store.Copy(ctx, t.finalBucket, srcKey, t.runtimeBucket, dstKey)
}

// Promote moves one runtime artifact to the final tier: a server-side
// copy followed by a delete of the runtime object. Transient storage
// errors are retried with exponential backoff; the copy is idempotent,
// so a retry after a failed delete just copies again.
func (t *Tiers) Promote(ctx context.Context, key string) error {
	if t == nil || t.store == nil {
		return errors.New("artifact tiers not initialized")
	}
	op := func() error {
		if err := t.store.Copy(ctx, t.runtimeBucket, key, t.finalBucket, key); err != nil {
			return err
		}
		return t.store.Delete(ctx, t.runtimeBucket, key)
	}
	notify := func(err error, wait time.Duration) {
		t.logger.Warn("artifact promotion retry",
			slog.String("key", key),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(t.newBackOff(), t.promoteRetries), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return fmt.Errorf("promote %s: %w", key, err)
	}
	return nil
}

// PromoteRun promotes every runtime artifact under the given prefix and
// returns how many objects were moved.
func (t *Tiers) PromoteRun(ctx context.Context, prefix string) (int, error) {
	if t == nil || t.store == nil {
		return 0, errors.New("artifact tiers not initialized")
	}
	objects, err := t.store.List(ctx, t.runtimeBucket, prefix)
	if err != nil {
		return 0, fmt.Errorf("list runtime artifacts: %w", err)
	}
	for i, obj := range objects {
		if err := t.Promote(ctx, obj.Key); err != nil {
			return i, err
		}
	}
	return len(objects), nil
}
