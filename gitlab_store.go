package boxdrive

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cospectrum/boxdrive/internal/gitlabapi"
)

// defaultMaxKeys is the S3 ListObjects default page size, reused as
// GitLabStore's full-tree-walk page size during DeleteBucket.
const defaultMaxKeys = 1000

// GitLabStore is an ObjectStore implementation that maps buckets to
// top-level directories and objects to files on a single branch of a GitLab
// repository. Buckets are materialized with a reserved placeholder
// file so an otherwise-empty directory still exists on the branch.
//
// Every mutating operation and every listing wraps its remote work in
// Keysmith.Lock(bucket), so a given bucket sees a serial order of commits and
// a consistent snapshot for the duration of a listing. When deployed behind
// more than one frontage replica, an optional DistributedLock additionally
// serializes across processes (see distributed_lock.go).
type GitLabStore struct {
	client          *gitlabapi.Client
	branch          string
	placeholderName Key

	keysmith *Keysmith
	breaker  *CircuitBreaker
	distLock *DistributedLock

	logger  Logger
	metrics Metrics
}

// GitLabStoreOption configures optional collaborators on a GitLabStore.
type GitLabStoreOption func(*GitLabStore)

// WithLogger attaches a structured logger.
func WithLogger(logger Logger) GitLabStoreOption {
	return func(s *GitLabStore) { s.logger = logger }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(metrics Metrics) GitLabStoreOption {
	return func(s *GitLabStore) { s.metrics = metrics }
}

// WithCircuitBreaker wraps every GitLab API call with cb. Without this
// option, calls are made directly with no fast-fail behavior.
func WithCircuitBreaker(cb *CircuitBreaker) GitLabStoreOption {
	return func(s *GitLabStore) { s.breaker = cb }
}

// WithDistributedLock additionally serializes bucket operations across
// frontage replicas via Redis, on top of the in-process Keysmith lock.
func WithDistributedLock(lock *DistributedLock) GitLabStoreOption {
	return func(s *GitLabStore) { s.distLock = lock }
}

// NewGitLabStore constructs a GitLabStore from cfg. Defaults (APIURL,
// PlaceholderName) are applied and cfg is validated before the client is built.
func NewGitLabStore(cfg GitLabConfig, opts ...GitLabStoreOption) (*GitLabStore, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &GitLabStore{
		client:          gitlabapi.NewClient(cfg.RepoID, cfg.AccessToken, cfg.APIURL),
		branch:          cfg.Branch,
		placeholderName: cfg.PlaceholderName,
		keysmith:        NewKeysmith(),
		logger:          &NoOpLogger{},
		metrics:         &NoOpMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// withBucket runs fn with the bucket's Keysmith lock held, and the optional
// distributed lock around that, matching the bucket-scoped critical sections
// of (create/delete bucket, put/delete object, both listings).
func (s *GitLabStore) withBucket(ctx context.Context, bucket BucketName, fn func(ctx context.Context) error) error {
	release := s.keysmith.Lock(bucket)
	defer release()

	if s.distLock == nil {
		return fn(ctx)
	}
	return WithBucketLock(ctx, s.distLock, s.metrics, bucket, 0, fn)
}

// call wraps a remote operation with the circuit breaker (if configured),
// logging, and metrics.
func (s *GitLabStore) call(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	run := fn
	if s.breaker != nil {
		run = func() error { return s.breaker.Execute(ctx, fn) }
	}
	err := run()
	s.metrics.Timing(MetricGitLabLatency, time.Since(start), "operation", operation)
	if err != nil {
		s.metrics.Increment(MetricGitLabErrors, "operation", operation)
		s.logger.Warn("gitlab call failed", "operation", operation, "error", err)
		return err
	}
	s.metrics.Increment(MetricGitLabCalls, "operation", operation, "status", "ok")
	return nil
}

func gitlabETag(data []byte) ETag {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func objectPath(bucket BucketName, key Key) string {
	return bucket + "/" + key
}

// splitObjectPath splits a repository-relative path into its leading bucket
// directory and the remaining object key.
func splitObjectPath(path string) (BucketName, Key, error) {
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("boxdrive: malformed tree path %q", path)
	}
	return parts[0], parts[1], nil
}

func skeletalObjectInfo(key Key) ObjectInfo {
	return ObjectInfo{
		Key:         key,
		ETag:        "",
		Size:        0,
		ContentType: "application/octet-stream",
		// LastModified left at the zero Time, standing in for the original's
		// datetime.min: ListFilter never looks at it, only the key string.
	}
}

func skeletalObjectInfos(keys []Key, exclude Key) []ObjectInfo {
	out := make([]ObjectInfo, 0, len(keys))
	for _, k := range keys {
		if k == exclude {
			continue
		}
		out = append(out, skeletalObjectInfo(k))
	}
	return out
}

// ListBuckets lists every top-level tree entry on the branch.
func (s *GitLabStore) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	now := time.Now().UTC()
	var page gitlabapi.TreePage
	err := s.call(ctx, "list_buckets", func() error {
		var err error
		page, err = s.client.GetTree(ctx, gitlabapi.TreeParams{Ref: s.branch})
		return err
	})
	if err != nil {
		return nil, wrapGitLabErr(err)
	}

	buckets := make([]BucketInfo, 0, len(page.Items))
	for _, item := range page.Items {
		if item.Type == "tree" {
			buckets = append(buckets, BucketInfo{Name: item.Name, CreationDate: now})
		}
	}
	return buckets, nil
}

// CreateBucket commits a placeholder file under bucket/, making the
// otherwise-empty directory visible on the branch.
func (s *GitLabStore) CreateBucket(ctx context.Context, bucket BucketName) error {
	if err := ValidateBucketName(bucket); err != nil {
		return err
	}
	return s.withBucket(ctx, bucket, func(ctx context.Context) error {
		filePath := objectPath(bucket, s.placeholderName)
		var status int
		var body string
		err := s.call(ctx, "create_bucket", func() error {
			r, err := s.client.CreateFile(ctx, filePath, gitlabapi.CreateFileBody{
				Branch:        s.branch,
				CommitMessage: "create bucket " + bucket,
			})
			if err != nil {
				return err
			}
			status, body = drainResponse(r)
			return nil
		})
		if err != nil {
			return wrapGitLabErr(err)
		}

		switch status {
		case http.StatusCreated:
			return nil
		case http.StatusBadRequest:
			s.logger.Info("gitlab response (400)", "bucket", bucket, "body", body)
			return WithContext(ErrBucketAlreadyExists, map[string]interface{}{"bucket": bucket})
		default:
			return wrapGitLabErr(&gitlabapi.StatusError{StatusCode: status, Body: body})
		}
	})
}

// DeleteBucket deletes every object under the bucket directory, including
// the placeholder, one commit per file. Individual 400 responses (file
// already absent) are logged and treated as idempotent success.
func (s *GitLabStore) DeleteBucket(ctx context.Context, bucket BucketName) error {
	return s.withBucket(ctx, bucket, func(ctx context.Context) error {
		keys, err := s.fetchObjectKeys(ctx, bucket, defaultMaxKeys, func([]Key) bool { return false })
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := s.deleteFile(ctx, bucket, key); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListObjects implements ListObjects v1 over the GitLab tree.
func (s *GitLabStore) ListObjects(ctx context.Context, bucket BucketName, params ListObjectsV1Params) (ListObjectsInfo, error) {
	var result ListObjectsInfo
	err := s.withBucket(ctx, bucket, func(ctx context.Context) error {
		perPage := max(GitLabListMinPerPage, params.MaxKeys)
		isEnough := func(keys []Key) bool {
			return FilterObjectsV1(skeletalObjectInfos(keys, s.placeholderName), params).IsTruncated
		}
		keys, err := s.fetchObjectKeys(ctx, bucket, perPage, isEnough)
		if err != nil {
			return err
		}

		result = FilterObjectsV1(skeletalObjectInfos(keys, s.placeholderName), params)
		objects, err := s.headFanOut(ctx, bucket, result.Objects)
		if err != nil {
			return err
		}
		result.Objects = objects
		return nil
	})
	return result, err
}

// ListObjectsV2 implements ListObjectsV2 over the GitLab tree.
func (s *GitLabStore) ListObjectsV2(ctx context.Context, bucket BucketName, params ListObjectsV2Params) (ListObjectsV2Info, error) {
	var result ListObjectsV2Info
	err := s.withBucket(ctx, bucket, func(ctx context.Context) error {
		perPage := max(GitLabListMinPerPage, params.MaxKeys)
		isEnough := func(keys []Key) bool {
			return FilterObjectsV2(skeletalObjectInfos(keys, s.placeholderName), params).IsTruncated
		}
		keys, err := s.fetchObjectKeys(ctx, bucket, perPage, isEnough)
		if err != nil {
			return err
		}

		result = FilterObjectsV2(skeletalObjectInfos(keys, s.placeholderName), params)
		objects, err := s.headFanOut(ctx, bucket, result.Objects)
		if err != nil {
			return err
		}
		result.Objects = objects
		return nil
	})
	return result, err
}

// GetObject fetches the file body and synthesizes its ObjectInfo. Not wrapped
// in the bucket's Keysmith lock: a single-file read needs no cross-operation
// snapshot, matching the reference implementation.
func (s *GitLabStore) GetObject(ctx context.Context, bucket BucketName, key Key) (Object, error) {
	if key == s.placeholderName {
		return Object{}, WithContext(ErrNoSuchKey, map[string]interface{}{"bucket": bucket, "key": key})
	}

	var data []byte
	err := s.call(ctx, "get_object", func() error {
		resp, err := s.client.GetFile(ctx, objectPath(bucket, key), s.branch)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case 200:
			data, err = gitlabapi.DecodeFileContent(resp.Body)
			return err
		case 404:
			return WithContext(ErrNoSuchKey, map[string]interface{}{"bucket": bucket, "key": key})
		default:
			return &gitlabapi.StatusError{StatusCode: resp.StatusCode}
		}
	})
	if err != nil {
		if IsNoSuchKey(err) {
			return Object{}, err
		}
		return Object{}, wrapGitLabErr(err)
	}

	return Object{
		Data: data,
		Info: ObjectInfo{
			Key:          key,
			Size:         uint64(len(data)),
			LastModified: time.Now().UTC(),
			ETag:         gitlabETag(data),
			ContentType:  "application/octet-stream",
		},
	}, nil
}

// PutObject commits data at bucket/key. The placeholder key is reserved and
// cannot be written to directly.
func (s *GitLabStore) PutObject(ctx context.Context, bucket BucketName, key Key, data []byte, contentType string) (ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return ObjectInfo{}, err
	}
	if key == s.placeholderName {
		return ObjectInfo{}, WithContext(ErrInvalidArgument, map[string]interface{}{
			"key":    key,
			"reason": "reserved placeholder key",
		})
	}

	var info ObjectInfo
	err := s.withBucket(ctx, bucket, func(ctx context.Context) error {
		filePath := objectPath(bucket, key)
		var status int
		var body string
		callErr := s.call(ctx, "put_object", func() error {
			r, err := s.client.CreateFile(ctx, filePath, gitlabapi.CreateFileBody{
				Branch:        s.branch,
				CommitMessage: "put object " + filePath,
				Content:       base64.StdEncoding.EncodeToString(data),
				Encoding:      "base64",
			})
			if err != nil {
				return err
			}
			status, body = drainResponse(r)
			return nil
		})
		if callErr != nil {
			return wrapGitLabErr(callErr)
		}

		if status != http.StatusCreated {
			return wrapGitLabErr(&gitlabapi.StatusError{StatusCode: status, Body: body})
		}

		if contentType == "" {
			contentType = "application/octet-stream"
		}
		info = ObjectInfo{
			Key:          key,
			Size:         uint64(len(data)),
			LastModified: time.Now().UTC(),
			ETag:         gitlabETag(data),
			ContentType:  contentType,
		}
		return nil
	})
	return info, err
}

// DeleteObject removes bucket/key. A request for the placeholder key is a
// silent no-op, keeping the placeholder's visibility rules symmetric.
func (s *GitLabStore) DeleteObject(ctx context.Context, bucket BucketName, key Key) error {
	if key == s.placeholderName {
		return nil
	}
	return s.withBucket(ctx, bucket, func(ctx context.Context) error {
		return s.deleteFile(ctx, bucket, key)
	})
}

// deleteFile issues the remote delete. Must be called with the bucket's
// Keysmith lock already held. A 400 response (file already absent) is
// logged and treated as idempotent success.
func (s *GitLabStore) deleteFile(ctx context.Context, bucket BucketName, key Key) error {
	filePath := objectPath(bucket, key)
	var status int
	var body string
	err := s.call(ctx, "delete_object", func() error {
		r, err := s.client.DeleteFile(ctx, filePath, s.branch, "delete object "+filePath)
		if err != nil {
			return err
		}
		status, body = drainResponse(r)
		return nil
	})
	if err != nil {
		return wrapGitLabErr(err)
	}

	switch status {
	case http.StatusNoContent:
		return nil
	case http.StatusBadRequest:
		s.logger.Info("gitlab response (400)", "bucket", bucket, "key", key, "body", body)
		return nil
	default:
		return wrapGitLabErr(&gitlabapi.StatusError{StatusCode: status, Body: body})
	}
}

// drainResponse reads and closes resp's body, returning the status code and
// body text for logging/error construction.
func drainResponse(resp *http.Response) (int, string) {
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

// HeadObject fetches file metadata via a GitLab HEAD request, no body
// transfer. Not wrapped in the bucket's Keysmith lock when called directly;
// callers inside a listing already hold it for the whole fan-out.
func (s *GitLabStore) HeadObject(ctx context.Context, bucket BucketName, key Key) (ObjectInfo, error) {
	if key == s.placeholderName {
		return ObjectInfo{}, WithContext(ErrNoSuchKey, map[string]interface{}{"bucket": bucket, "key": key})
	}

	var head gitlabapi.FileHead
	err := s.call(ctx, "head_object", func() error {
		var err error
		head, err = s.client.HeadFile(ctx, objectPath(bucket, key), s.branch)
		return err
	})
	if err != nil {
		if statusErr, ok := asStatusError(err); ok && statusErr.StatusCode == 404 {
			return ObjectInfo{}, WithContext(ErrNoSuchKey, map[string]interface{}{"bucket": bucket, "key": key})
		}
		return ObjectInfo{}, wrapGitLabErr(err)
	}

	return ObjectInfo{
		Key:          key,
		Size:         uint64(head.Size),
		LastModified: time.Now().UTC(),
		ETag:         head.ContentSHA256,
		ContentType:  "application/octet-stream",
	}, nil
}

// fetchObjectKeys pages through the bucket's recursive tree listing until
// either the last page has been read or isEnough reports that ListFilter
// already has enough keys to answer the caller's request.
func (s *GitLabStore) fetchObjectKeys(ctx context.Context, bucket BucketName, perPage int, isEnough func([]Key) bool) ([]Key, error) {
	var keys []Key
	for page := 1; page < GitLabListMaxPage; page++ {
		var treePage gitlabapi.TreePage
		err := s.call(ctx, "get_tree", func() error {
			var err error
			treePage, err = s.client.GetTree(ctx, gitlabapi.TreeParams{
				Ref:       s.branch,
				Path:      bucket,
				Recursive: true,
				Page:      page,
				PerPage:   perPage,
			})
			return err
		})
		if err != nil {
			return nil, wrapGitLabErr(err)
		}

		for _, item := range treePage.Items {
			if item.Type != "blob" {
				continue
			}
			_, key, err := splitObjectPath(item.Path)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}

		if page == treePage.TotalPages || isEnough(keys) {
			return keys, nil
		}
	}
	return keys, nil
}

// headFanOut fills in size/etag/content-type for skeletal.Objects in batches
// of GitLabHeadFanOutBatchSize concurrent HEAD requests.
func (s *GitLabStore) headFanOut(ctx context.Context, bucket BucketName, skeletal []ObjectInfo) ([]ObjectInfo, error) {
	out := make([]ObjectInfo, len(skeletal))
	for start := 0; start < len(skeletal); start += GitLabHeadFanOutBatchSize {
		end := min(start+GitLabHeadFanOutBatchSize, len(skeletal))
		batch := skeletal[start:end]

		var wg sync.WaitGroup
		errs := make([]error, len(batch))
		results := make([]ObjectInfo, len(batch))
		for i, obj := range batch {
			wg.Add(1)
			go func(i int, key Key) {
				defer wg.Done()
				info, err := s.HeadObject(ctx, bucket, key)
				results[i] = info
				errs[i] = err
			}(i, obj.Key)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				return nil, err
			}
			out[start+i] = results[i]
		}
	}
	return out, nil
}

func wrapGitLabErr(err error) error {
	if err == nil {
		return nil
	}
	if IsNoSuchKey(err) || IsNoSuchBucket(err) || IsBucketAlreadyExists(err) {
		return err
	}
	return WithContext(ErrRemote, map[string]interface{}{"reason": err.Error()})
}

func asStatusError(err error) (*gitlabapi.StatusError, bool) {
	statusErr, ok := err.(*gitlabapi.StatusError)
	return statusErr, ok
}
