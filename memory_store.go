package boxdrive

import (
	"context"
	"crypto/md5" //nolint:gosec // ETag, not a security boundary; matches real S3's non-multipart ETag algorithm.
	"encoding/hex"
	"sync"
	"time"
)

// memoryBucket holds one bucket's objects and creation time.
type memoryBucket struct {
	creationDate time.Time
	objects      map[Key]Object
}

// MemoryStore is the in-process reference ObjectStore implementation:
// buckets and objects held entirely in memory. ETag is the MD5 hex digest of
// the body; last-modified is wall-clock time at put. Listing delegates to
// ListFilter over the materialized object set.
//
// MemoryStore relies on an external serialization point (the single-threaded
// facade) for thread safety across operations; mu only protects the
// bucket map itself against concurrent Go-level access.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[BucketName]*memoryBucket
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[BucketName]*memoryBucket),
	}
}

func (m *MemoryStore) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]BucketInfo, 0, len(m.buckets))
	for name, b := range m.buckets {
		out = append(out, BucketInfo{Name: name, CreationDate: b.creationDate})
	}
	return out, nil
}

func (m *MemoryStore) CreateBucket(ctx context.Context, name BucketName) error {
	if err := ValidateBucketName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[name]; ok {
		return WithContext(ErrBucketAlreadyExists, map[string]interface{}{"bucket": name})
	}
	m.buckets[name] = &memoryBucket{
		creationDate: time.Now().UTC(),
		objects:      make(map[Key]Object),
	}
	return nil
}

func (m *MemoryStore) DeleteBucket(ctx context.Context, name BucketName) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[name]; !ok {
		return WithContext(ErrNoSuchBucket, map[string]interface{}{"bucket": name})
	}
	delete(m.buckets, name)
	return nil
}

func (m *MemoryStore) objectInfos(name BucketName) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.buckets[name]
	if !ok {
		return nil, WithContext(ErrNoSuchBucket, map[string]interface{}{"bucket": name})
	}
	out := make([]ObjectInfo, 0, len(b.objects))
	for _, obj := range b.objects {
		out = append(out, obj.Info)
	}
	return out, nil
}

func (m *MemoryStore) ListObjects(ctx context.Context, bucket BucketName, params ListObjectsV1Params) (ListObjectsInfo, error) {
	objects, err := m.objectInfos(bucket)
	if err != nil {
		return ListObjectsInfo{}, err
	}
	return FilterObjectsV1(objects, params), nil
}

func (m *MemoryStore) ListObjectsV2(ctx context.Context, bucket BucketName, params ListObjectsV2Params) (ListObjectsV2Info, error) {
	objects, err := m.objectInfos(bucket)
	if err != nil {
		return ListObjectsV2Info{}, err
	}
	return FilterObjectsV2(objects, params), nil
}

func (m *MemoryStore) GetObject(ctx context.Context, bucket BucketName, key Key) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.buckets[bucket]
	if !ok {
		return Object{}, WithContext(ErrNoSuchBucket, map[string]interface{}{"bucket": bucket})
	}
	obj, ok := b.objects[key]
	if !ok {
		return Object{}, WithContext(ErrNoSuchKey, map[string]interface{}{"bucket": bucket, "key": key})
	}
	return obj, nil
}

func (m *MemoryStore) PutObject(ctx context.Context, bucket BucketName, key Key, data []byte, contentType string) (ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[bucket]
	if !ok {
		return ObjectInfo{}, WithContext(ErrNoSuchBucket, map[string]interface{}{"bucket": bucket})
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	sum := md5.Sum(data) //nolint:gosec
	info := ObjectInfo{
		Key:          key,
		Size:         uint64(len(data)),
		LastModified: time.Now().UTC(),
		ETag:         hex.EncodeToString(sum[:]),
		ContentType:  contentType,
	}
	body := make([]byte, len(data))
	copy(body, data)
	b.objects[key] = Object{Data: body, Info: info}
	return info, nil
}

func (m *MemoryStore) HeadObject(ctx context.Context, bucket BucketName, key Key) (ObjectInfo, error) {
	obj, err := m.GetObject(ctx, bucket, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	return obj.Info, nil
}

func (m *MemoryStore) DeleteObject(ctx context.Context, bucket BucketName, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[bucket]
	if !ok {
		return WithContext(ErrNoSuchBucket, map[string]interface{}{"bucket": bucket})
	}
	if _, ok := b.objects[key]; !ok {
		return WithContext(ErrNoSuchKey, map[string]interface{}{"bucket": bucket, "key": key})
	}
	delete(b.objects, key)
	return nil
}
