package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]map[string]memoryObject
}

type memoryObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]memoryObject)}
}

func (s *MemoryStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	if s == nil {
		return fmt.Errorf("memory store not initialized")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("size mismatch: declared %d, read %d", size, len(data))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, ok := s.buckets[bucket]
	if !ok {
		objects = make(map[string]memoryObject)
		s.buckets[bucket] = objects
	}
	objects[key] = memoryObject{data: data, contentType: contentType, lastModified: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	info, err := s.Stat(ctx, bucket, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	s.mu.Lock()
	obj := s.buckets[bucket][key]
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	s.mu.Unlock()
	return io.NopCloser(bytes.NewReader(data)), info, nil
}

func (s *MemoryStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	if s == nil {
		return ObjectInfo{}, fmt.Errorf("memory store not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.buckets[bucket][key]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return s.infoLocked(key, obj), nil
}

func (s *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	if s == nil {
		return fmt.Errorf("memory store not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets[bucket], key)
	return nil
}

func (s *MemoryStore) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	if s == nil {
		return fmt.Errorf("memory store not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.buckets[srcBucket][srcKey]
	if !ok {
		return fmt.Errorf("object %s/%s not found", srcBucket, srcKey)
	}
	objects, ok := s.buckets[dstBucket]
	if !ok {
		objects = make(map[string]memoryObject)
		s.buckets[dstBucket] = objects
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	objects[dstKey] = memoryObject{data: data, contentType: obj.contentType, lastModified: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if s == nil {
		return nil, fmt.Errorf("memory store not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ObjectInfo
	for key, obj := range s.buckets[bucket] {
		if strings.HasPrefix(key, prefix) {
			out = append(out, s.infoLocked(key, obj))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) infoLocked(key string, obj memoryObject) ObjectInfo {
	sum := sha256.Sum256(obj.data)
	return ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ETag:         hex.EncodeToString(sum[:8]),
		ContentType:  obj.contentType,
		LastModified: obj.lastModified,
	}
}

var _ Store = (*MemoryStore)(nil)
