package boxdrive

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3BackedStore implements ObjectStore against a real AWS S3 (or path-style
// S3-compatible, e.g. MinIO) endpoint. Bucket operations map directly onto
// CreateBucket/DeleteBucket/ListBuckets; object operations map onto
// GetObject/PutObject/HeadObject/DeleteObject. Listing is delegated straight
// to the upstream endpoint rather than re-run through ListFilter, since S3
// already implements the same marker/continuation-token contract ListFilter
// models — this backend is the reference point proving ListFilter's
// semantics track real S3.
type S3BackedStore struct {
	client *s3.Client
}

// NewS3BackedStore wraps an already-configured *s3.Client.
func NewS3BackedStore(client *s3.Client) *S3BackedStore {
	return &S3BackedStore{client: client}
}

func (s *S3BackedStore) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	out, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, wrapRemoteErr(err)
	}
	buckets := make([]BucketInfo, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		var created time.Time
		if b.CreationDate != nil {
			created = *b.CreationDate
		}
		buckets = append(buckets, BucketInfo{Name: aws.ToString(b.Name), CreationDate: created})
	}
	return buckets, nil
}

func (s *S3BackedStore) CreateBucket(ctx context.Context, name BucketName) error {
	if err := ValidateBucketName(name); err != nil {
		return err
	}
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
	if err != nil {
		if isAWSErrorCode(err, "BucketAlreadyExists", "BucketAlreadyOwnedByYou") {
			return WithContext(ErrBucketAlreadyExists, map[string]interface{}{"bucket": name})
		}
		return wrapRemoteErr(err)
	}
	return nil
}

func (s *S3BackedStore) DeleteBucket(ctx context.Context, name BucketName) error {
	_, err := s.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
	if err != nil {
		if isAWSErrorCode(err, "NoSuchBucket") {
			return WithContext(ErrNoSuchBucket, map[string]interface{}{"bucket": name})
		}
		return wrapRemoteErr(err)
	}
	return nil
}

func (s *S3BackedStore) ListObjects(ctx context.Context, bucket BucketName, params ListObjectsV1Params) (ListObjectsInfo, error) {
	input := &s3.ListObjectsInput{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(params.Prefix),
		Delimiter: aws.String(params.Delimiter),
		MaxKeys:   aws.Int32(int32(params.MaxKeys)),
	}
	if params.Marker != "" {
		input.Marker = aws.String(params.Marker)
	}
	if params.EncodingType == EncodingURL {
		input.EncodingType = types.EncodingTypeUrl
	}

	out, err := s.client.ListObjects(ctx, input)
	if err != nil {
		if isAWSErrorCode(err, "NoSuchBucket") {
			return ListObjectsInfo{}, WithContext(ErrNoSuchBucket, map[string]interface{}{"bucket": bucket})
		}
		return ListObjectsInfo{}, wrapRemoteErr(err)
	}

	result := ListObjectsInfo{
		IsTruncated: aws.ToBool(out.IsTruncated),
		NextMarker:  aws.ToString(out.NextMarker),
	}
	for _, obj := range out.Contents {
		result.Objects = append(result.Objects, toObjectInfo(obj))
	}
	for _, p := range out.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, aws.ToString(p.Prefix))
	}
	return result, nil
}

func (s *S3BackedStore) ListObjectsV2(ctx context.Context, bucket BucketName, params ListObjectsV2Params) (ListObjectsV2Info, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(params.Prefix),
		Delimiter: aws.String(params.Delimiter),
		MaxKeys:   aws.Int32(int32(params.MaxKeys)),
	}
	if params.ContinuationToken != "" {
		input.ContinuationToken = aws.String(params.ContinuationToken)
	}
	if params.StartAfter != "" {
		input.StartAfter = aws.String(params.StartAfter)
	}
	if params.EncodingType == EncodingURL {
		input.EncodingType = types.EncodingTypeUrl
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		if isAWSErrorCode(err, "NoSuchBucket") {
			return ListObjectsV2Info{}, WithContext(ErrNoSuchBucket, map[string]interface{}{"bucket": bucket})
		}
		return ListObjectsV2Info{}, wrapRemoteErr(err)
	}

	result := ListObjectsV2Info{
		IsTruncated:         aws.ToBool(out.IsTruncated),
		NextContinuationKey: aws.ToString(out.NextContinuationToken),
	}
	for _, obj := range out.Contents {
		result.Objects = append(result.Objects, toObjectInfo(obj))
	}
	for _, p := range out.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, aws.ToString(p.Prefix))
	}
	return result, nil
}

func (s *S3BackedStore) GetObject(ctx context.Context, bucket BucketName, key Key) (Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		if isAWSErrorCode(err, "NoSuchKey") {
			return Object{}, WithContext(ErrNoSuchKey, map[string]interface{}{"bucket": bucket, "key": key})
		}
		if isAWSErrorCode(err, "NoSuchBucket") {
			return Object{}, WithContext(ErrNoSuchBucket, map[string]interface{}{"bucket": bucket})
		}
		return Object{}, wrapRemoteErr(err)
	}
	defer func() { _ = out.Body.Close() }() //nolint:errcheck // deferred close

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Object{}, wrapRemoteErr(err)
	}

	var lastModified time.Time
	if out.LastModified != nil {
		lastModified = *out.LastModified
	}
	return Object{
		Data: data,
		Info: ObjectInfo{
			Key:          key,
			Size:         uint64(len(data)),
			LastModified: lastModified,
			ETag:         strings.Trim(aws.ToString(out.ETag), "\""),
			ContentType:  aws.ToString(out.ContentType),
		},
	}, nil
}

func (s *S3BackedStore) PutObject(ctx context.Context, bucket BucketName, key Key, data []byte, contentType string) (ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return ObjectInfo{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		if isAWSErrorCode(err, "NoSuchBucket") {
			return ObjectInfo{}, WithContext(ErrNoSuchBucket, map[string]interface{}{"bucket": bucket})
		}
		return ObjectInfo{}, wrapRemoteErr(err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         uint64(len(data)),
		LastModified: time.Now().UTC(),
		ETag:         strings.Trim(aws.ToString(out.ETag), "\""),
		ContentType:  contentType,
	}, nil
}

func (s *S3BackedStore) HeadObject(ctx context.Context, bucket BucketName, key Key) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		if isAWSErrorCode(err, "NotFound", "NoSuchKey") {
			return ObjectInfo{}, WithContext(ErrNoSuchKey, map[string]interface{}{"bucket": bucket, "key": key})
		}
		if isAWSErrorCode(err, "NoSuchBucket") {
			return ObjectInfo{}, WithContext(ErrNoSuchBucket, map[string]interface{}{"bucket": bucket})
		}
		return ObjectInfo{}, wrapRemoteErr(err)
	}
	var lastModified time.Time
	if out.LastModified != nil {
		lastModified = *out.LastModified
	}
	return ObjectInfo{
		Key:          key,
		Size:         uint64(aws.ToInt64(out.ContentLength)),
		LastModified: lastModified,
		ETag:         strings.Trim(aws.ToString(out.ETag), "\""),
		ContentType:  aws.ToString(out.ContentType),
	}, nil
}

func (s *S3BackedStore) DeleteObject(ctx context.Context, bucket BucketName, key Key) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return wrapRemoteErr(err)
	}
	return nil
}

func toObjectInfo(obj types.Object) ObjectInfo {
	var lastModified time.Time
	if obj.LastModified != nil {
		lastModified = *obj.LastModified
	}
	return ObjectInfo{
		Key:          aws.ToString(obj.Key),
		Size:         uint64(aws.ToInt64(obj.Size)),
		LastModified: lastModified,
		ETag:         strings.Trim(aws.ToString(obj.ETag), "\""),
	}
}

func isAWSErrorCode(err error, codes ...string) bool {
	for _, code := range codes {
		if strings.Contains(err.Error(), code) {
			return true
		}
	}
	return false
}

func wrapRemoteErr(err error) error {
	return WithContext(ErrRemote, map[string]interface{}{"cause": err.Error()})
}
