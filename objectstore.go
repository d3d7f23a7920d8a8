package boxdrive

import "context"

// ObjectStore is the abstract contract a backing store must implement to sit
// behind the S3 facade. MemoryStore, GitLabStore, S3BackedStore, and
// GCSBackedStore are the implementations in this module.
type ObjectStore interface {
	ListBuckets(ctx context.Context) ([]BucketInfo, error)
	CreateBucket(ctx context.Context, name BucketName) error
	DeleteBucket(ctx context.Context, name BucketName) error

	ListObjects(ctx context.Context, bucket BucketName, params ListObjectsV1Params) (ListObjectsInfo, error)
	ListObjectsV2(ctx context.Context, bucket BucketName, params ListObjectsV2Params) (ListObjectsV2Info, error)

	GetObject(ctx context.Context, bucket BucketName, key Key) (Object, error)
	PutObject(ctx context.Context, bucket BucketName, key Key, data []byte, contentType string) (ObjectInfo, error)
	HeadObject(ctx context.Context, bucket BucketName, key Key) (ObjectInfo, error)
	DeleteObject(ctx context.Context, bucket BucketName, key Key) error
}
