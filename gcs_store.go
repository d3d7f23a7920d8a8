package boxdrive

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GCSBackedStore implements ObjectStore against Google Cloud Storage, giving
// boxdrive multi-cloud parity with S3BackedStore. GCS has no native
// marker/continuation-token listing contract of its own, so listing fetches
// every object name under the bucket and re-runs it through
// FilterObjectsV1/V2, the same strategy GitLabStore uses against a tree walk.
type GCSBackedStore struct {
	client    *storage.Client
	projectID string
}

// NewGCSBackedStore wraps an already-configured *storage.Client. projectID is
// required for bucket enumeration/creation, which GCS scopes to a project
// rather than to a bucket handle.
func NewGCSBackedStore(client *storage.Client, projectID string) *GCSBackedStore {
	return &GCSBackedStore{client: client, projectID: projectID}
}

func (s *GCSBackedStore) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	it := s.client.Buckets(ctx, s.projectID)
	var buckets []BucketInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapGCSErr(err, "", "")
		}
		buckets = append(buckets, BucketInfo{Name: attrs.Name, CreationDate: attrs.Created})
	}
	return buckets, nil
}

func (s *GCSBackedStore) CreateBucket(ctx context.Context, name BucketName) error {
	if err := ValidateBucketName(name); err != nil {
		return err
	}
	if err := s.client.Bucket(name).Create(ctx, s.projectID, nil); err != nil {
		if isGCSConflict(err) {
			return WithContext(ErrBucketAlreadyExists, map[string]interface{}{"bucket": name})
		}
		return wrapGCSErr(err, name, "")
	}
	return nil
}

func (s *GCSBackedStore) DeleteBucket(ctx context.Context, name BucketName) error {
	bucket := s.client.Bucket(name)
	if err := bucket.Delete(ctx); err != nil {
		return wrapGCSErr(err, name, "")
	}
	return nil
}

func (s *GCSBackedStore) ListObjects(ctx context.Context, bucket BucketName, params ListObjectsV1Params) (ListObjectsInfo, error) {
	objects, err := s.listAll(ctx, bucket)
	if err != nil {
		return ListObjectsInfo{}, err
	}
	return FilterObjectsV1(objects, params), nil
}

func (s *GCSBackedStore) ListObjectsV2(ctx context.Context, bucket BucketName, params ListObjectsV2Params) (ListObjectsV2Info, error) {
	objects, err := s.listAll(ctx, bucket)
	if err != nil {
		return ListObjectsV2Info{}, err
	}
	return FilterObjectsV2(objects, params), nil
}

func (s *GCSBackedStore) listAll(ctx context.Context, bucket BucketName) ([]ObjectInfo, error) {
	it := s.client.Bucket(bucket).Objects(ctx, nil)
	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapGCSErr(err, bucket, "")
		}
		objects = append(objects, gcsObjectInfo(attrs))
	}
	return objects, nil
}

func (s *GCSBackedStore) GetObject(ctx context.Context, bucket BucketName, key Key) (Object, error) {
	handle := s.client.Bucket(bucket).Object(key)
	attrs, err := handle.Attrs(ctx)
	if err != nil {
		return Object{}, wrapGCSErr(err, bucket, key)
	}

	reader, err := handle.NewReader(ctx)
	if err != nil {
		return Object{}, wrapGCSErr(err, bucket, key)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return Object{}, wrapGCSErr(err, bucket, key)
	}
	return Object{Data: data, Info: gcsObjectInfo(attrs)}, nil
}

func (s *GCSBackedStore) PutObject(ctx context.Context, bucket BucketName, key Key, data []byte, contentType string) (ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return ObjectInfo{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	writer := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return ObjectInfo{}, wrapGCSErr(err, bucket, key)
	}
	if err := writer.Close(); err != nil {
		return ObjectInfo{}, wrapGCSErr(err, bucket, key)
	}
	return gcsObjectInfo(writer.Attrs()), nil
}

func (s *GCSBackedStore) HeadObject(ctx context.Context, bucket BucketName, key Key) (ObjectInfo, error) {
	attrs, err := s.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		return ObjectInfo{}, wrapGCSErr(err, bucket, key)
	}
	return gcsObjectInfo(attrs), nil
}

func (s *GCSBackedStore) DeleteObject(ctx context.Context, bucket BucketName, key Key) error {
	if err := s.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		return wrapGCSErr(err, bucket, key)
	}
	return nil
}

func gcsObjectInfo(attrs *storage.ObjectAttrs) ObjectInfo {
	var lastModified time.Time
	if !attrs.Updated.IsZero() {
		lastModified = attrs.Updated
	}
	return ObjectInfo{
		Key:          attrs.Name,
		Size:         uint64(attrs.Size),
		LastModified: lastModified,
		ETag:         hex.EncodeToString(attrs.MD5),
		ContentType:  attrs.ContentType,
	}
}

func isGCSConflict(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 409
}

func wrapGCSErr(err error, bucket BucketName, key Key) error {
	if err == storage.ErrObjectNotExist {
		return WithContext(ErrNoSuchKey, map[string]interface{}{"bucket": bucket, "key": key})
	}
	if err == storage.ErrBucketNotExist {
		return WithContext(ErrNoSuchBucket, map[string]interface{}{"bucket": bucket})
	}
	return WithContext(ErrRemote, map[string]interface{}{"cause": err.Error()})
}
