package boxdrive

import "time"

// BucketName is a validated S3-style bucket name (see ValidateBucketName).
type BucketName = string

// Key identifies an object within a bucket. Opaque beyond validation.
type Key = string

// ETag is an opaque hex entity tag, unquoted. Facades are responsible for
// wrapping it in double quotes on the wire.
type ETag = string

// ObjectInfo is the lightweight metadata view of an object: no body.
type ObjectInfo struct {
	Key          Key
	Size         uint64
	LastModified time.Time
	ETag         ETag
	ContentType  string
}

// Object is an ObjectInfo plus its body.
type Object struct {
	Data []byte
	Info ObjectInfo
}

// BucketInfo describes a bucket for ListBuckets.
type BucketInfo struct {
	Name         BucketName
	CreationDate time.Time
}

// EncodingType selects how ListFilter encodes returned keys and prefixes.
type EncodingType string

const (
	EncodingNone EncodingType = ""
	EncodingURL  EncodingType = "url"
)

// ListObjectsParams are the shared v1/v2 ListFilter inputs.
type ListObjectsParams struct {
	Prefix       string
	Delimiter    string
	MaxKeys      int
	EncodingType EncodingType
}

// ListObjectsV1Params adds the v1-only cursor.
type ListObjectsV1Params struct {
	ListObjectsParams
	Marker string
}

// ListObjectsV2Params adds the v2-only cursors.
type ListObjectsV2Params struct {
	ListObjectsParams
	ContinuationToken string
	StartAfter        string
}

// ListObjectsInfo is the v1 listing result. NextMarker is empty iff
// IsTruncated is false.
type ListObjectsInfo struct {
	Objects        []ObjectInfo
	CommonPrefixes []string
	IsTruncated    bool
	NextMarker     string
}

// ListObjectsV2Info is the v2 listing result. Truncation continuation is the
// caller's responsibility (the facade synthesizes a continuation token from
// the last emitted key); this package only reports IsTruncated and the keys
// needed to resume (exposed via NextContinuationKey for that synthesis).
type ListObjectsV2Info struct {
	Objects             []ObjectInfo
	CommonPrefixes      []string
	IsTruncated         bool
	NextContinuationKey string
}
