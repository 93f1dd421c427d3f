package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/cenkalti/backoff/v4"

	"github.com/LCLUCam/VULCAN/storage/objectstore"
)

func newTestTiers(t *testing.T) (*Tiers, *objectstore.MemoryStore) {
	t.Helper()
	store := objectstore.NewMemoryStore()
	tiers, err := NewTiers(store, "vul-runtime", "vul-final", nil)
	if err != nil {
		t.Fatalf("NewTiers() err=%v", err)
	}
	return tiers, store
}

func TestNewTiersRejectsSameBucket(t *testing.T) {
	if _, err := NewTiers(objectstore.NewMemoryStore(), "vul", "vul", nil); err == nil {
		t.Fatalf("expected same-bucket tiers to be rejected")
	}
}

func TestRuntimeRoundTrip(t *testing.T) {
	tiers, _ := newTestTiers(t)
	ctx := context.Background()

	key := "earth-run-0001-200-output.vul"
	digest, err := tiers.PutRuntime(ctx, key, []byte("payload"), "application/octet-stream")
	if err != nil {
		t.Fatalf("PutRuntime() err=%v", err)
	}
	sum := sha256.Sum256([]byte("payload"))
	if want := hex.EncodeToString(sum[:]); digest != want {
		t.Fatalf("PutRuntime() sha256 = %q, want %q", digest, want)
	}
	got, err := tiers.GetRuntime(ctx, key)
	if err != nil {
		t.Fatalf("GetRuntime() err=%v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("GetRuntime() = %q, want %q", got, "payload")
	}

	// Nothing is visible in the final tier before promotion.
	if _, err := tiers.GetFinal(ctx, key); err == nil {
		t.Fatalf("expected final tier miss before promotion")
	}
}

func TestPromoteRunCopiesEveryArtifact(t *testing.T) {
	tiers, _ := newTestTiers(t)
	ctx := context.Background()

	keys := []string{
		"earth-run-0002-200-cfgFile.txt",
		"earth-run-0002-200-output.vul",
		"earth-run-0002-201-output.vul",
	}
	for _, key := range keys {
		if _, err := tiers.PutRuntime(ctx, key, []byte(key), "application/octet-stream"); err != nil {
			t.Fatalf("PutRuntime(%s) err=%v", key, err)
		}
	}
	// Another run's artifact stays untouched.
	if _, err := tiers.PutRuntime(ctx, "earth-run-0003-200-output.vul", []byte("x"), ""); err != nil {
		t.Fatalf("PutRuntime() err=%v", err)
	}

	n, err := tiers.PromoteRun(ctx, "earth-run-0002-")
	if err != nil {
		t.Fatalf("PromoteRun() err=%v", err)
	}
	if n != len(keys) {
		t.Fatalf("PromoteRun() moved %d objects, want %d", n, len(keys))
	}
	for _, key := range keys {
		got, err := tiers.GetFinal(ctx, key)
		if err != nil {
			t.Fatalf("GetFinal(%s) err=%v", key, err)
		}
		if string(got) != key {
			t.Fatalf("GetFinal(%s) = %q", key, got)
		}
		// Promotion moves: the runtime object is gone.
		if _, err := tiers.GetRuntime(ctx, key); err == nil {
			t.Fatalf("runtime object %s must be removed after promotion", key)
		}
	}
	if _, err := tiers.GetFinal(ctx, "earth-run-0003-200-output.vul"); err == nil {
		t.Fatalf("unpromoted run must not appear in the final tier")
	}
	if _, err := tiers.GetRuntime(ctx, "earth-run-0003-200-output.vul"); err != nil {
		t.Fatalf("unpromoted runtime object must survive: %v", err)
	}
}

func TestCopyFinalToRuntimeSeedsReuse(t *testing.T) {
	tiers, _ := newTestTiers(t)
	ctx := context.Background()

	prior := "earth-run-0001-200-output.vul"
	if _, err := tiers.PutRuntime(ctx, prior, []byte("prior output"), ""); err != nil {
		t.Fatalf("PutRuntime() err=%v", err)
	}
	if err := tiers.Promote(ctx, prior); err != nil {
		t.Fatalf("Promote() err=%v", err)
	}

	next := "earth-run-0002-200-output.vul"
	if err := tiers.CopyFinalToRuntime(ctx, prior, next); err != nil {
		t.Fatalf("CopyFinalToRuntime() err=%v", err)
	}
	got, err := tiers.GetRuntime(ctx, next)
	if err != nil {
		t.Fatalf("GetRuntime() err=%v", err)
	}
	if string(got) != "prior output" {
		t.Fatalf("GetRuntime() = %q", got)
	}
}

type flakyStore struct {
	*objectstore.MemoryStore
	failures int
}

func (f *flakyStore) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("transient storage error")
	}
	return f.MemoryStore.Copy(ctx, srcBucket, srcKey, dstBucket, dstKey)
}

func TestPromoteRetriesTransientErrors(t *testing.T) {
	store := &flakyStore{MemoryStore: objectstore.NewMemoryStore(), failures: 2}
	tiers, err := NewTiers(store, "vul-runtime", "vul-final", nil)
	if err != nil {
		t.Fatalf("NewTiers() err=%v", err)
	}
	tiers.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	ctx := context.Background()

	key := "earth-run-0001-200-output.vul"
	if _, err := tiers.PutRuntime(ctx, key, []byte("payload"), ""); err != nil {
		t.Fatalf("PutRuntime() err=%v", err)
	}
	if err := tiers.Promote(ctx, key); err != nil {
		t.Fatalf("Promote() err=%v", err)
	}
	body, err := tiers.GetFinal(ctx, key)
	if err != nil {
		t.Fatalf("GetFinal() err=%v", err)
	}
	if !strings.Contains(string(body), "payload") {
		t.Fatalf("GetFinal() = %q", body)
	}
	if _, err := tiers.GetRuntime(ctx, key); err == nil {
		t.Fatalf("runtime object must be removed after promotion")
	}
}
