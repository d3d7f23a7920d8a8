package s3facade

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	bd "github.com/cospectrum/boxdrive"
)

// ObjectStore is an alias of the full boxdrive.ObjectStore interface, named
// locally for use in this package.
type ObjectStore = bd.ObjectStore

type handler struct {
	store ObjectStore
}

func (h *handler) listBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.store.ListBuckets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	result := ListAllMyBucketsResult{Xmlns: s3Namespace, Owner: fixedOwner()}
	for _, b := range buckets {
		result.Buckets.Bucket = append(result.Buckets.Bucket, Bucket{
			Name:         b.Name,
			CreationDate: b.CreationDate.UTC().Format(http.TimeFormat),
		})
	}
	writeXML(w, http.StatusOK, result)
}

func (h *handler) createBucket(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]
	if err := h.store.CreateBucket(r.Context(), bucket); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/"+bucket)
	w.WriteHeader(http.StatusOK)
}

func (h *handler) deleteBucket(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]
	// Idempotent: a NoSuchBucket failure still reports 204.
	if err := h.store.DeleteBucket(r.Context(), bucket); err != nil && !bd.IsNoSuchBucket(err) {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listObjects(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]
	q := r.URL.Query()

	params := bd.ListObjectsParams{
		Prefix:       q.Get("prefix"),
		Delimiter:    q.Get("delimiter"),
		MaxKeys:      queryInt(q, "max-keys", 1000),
		EncodingType: bd.EncodingType(q.Get("encoding-type")),
	}

	if q.Get("list-type") == "2" {
		h.listObjectsV2(w, r, bucket, params)
		return
	}

	info, err := h.store.ListObjects(r.Context(), bucket, bd.ListObjectsV1Params{
		ListObjectsParams: params,
		Marker:            q.Get("marker"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	result := ListBucketResult{
		Xmlns:       s3Namespace,
		Name:        bucket,
		Prefix:      params.Prefix,
		Marker:      q.Get("marker"),
		NextMarker:  info.NextMarker,
		MaxKeys:     params.MaxKeys,
		Delimiter:   params.Delimiter,
		IsTruncated: info.IsTruncated,
		Contents:    toContents(info.Objects),
	}
	for _, p := range info.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, CommonPrefix{Prefix: p})
	}
	writeXML(w, http.StatusOK, result)
}

func (h *handler) listObjectsV2(w http.ResponseWriter, r *http.Request, bucket string, params bd.ListObjectsParams) {
	values := r.URL.Query()
	info, err := h.store.ListObjectsV2(r.Context(), bucket, bd.ListObjectsV2Params{
		ListObjectsParams: params,
		ContinuationToken: values.Get("continuation-token"),
		StartAfter:        values.Get("start-after"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	result := ListBucketResult{
		Xmlns:                 s3Namespace,
		Name:                  bucket,
		Prefix:                params.Prefix,
		ContinuationToken:     values.Get("continuation-token"),
		StartAfter:            values.Get("start-after"),
		NextContinuationToken: info.NextContinuationKey,
		KeyCount:              len(info.Objects),
		MaxKeys:               params.MaxKeys,
		Delimiter:             params.Delimiter,
		IsTruncated:           info.IsTruncated,
		Contents:              toContents(info.Objects),
	}
	for _, p := range info.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, CommonPrefix{Prefix: p})
	}
	writeXML(w, http.StatusOK, result)
}

func toContents(objects []bd.ObjectInfo) []Contents {
	out := make([]Contents, 0, len(objects))
	for _, obj := range objects {
		out = append(out, Contents{
			Key:          obj.Key,
			LastModified: obj.LastModified.UTC().Format(http.TimeFormat),
			ETag:         quoteETag(obj.ETag),
			Size:         obj.Size,
			StorageClass: storageClass,
			Owner:        fixedOwner(),
		})
	}
	return out
}

func (h *handler) getObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	obj, err := h.store.GetObject(r.Context(), vars["bucket"], vars["key"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	start, end, hasRange, ok := parseRange(r.Header.Get("Range"), len(obj.Data))
	if hasRange && !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", len(obj.Data)))
		writeErrorStatus(w, r, http.StatusRequestedRangeNotSatisfiable, "InvalidRange", "The requested range is not satisfiable")
		return
	}

	setObjectHeaders(w, obj.Info, vars["key"])

	if hasRange {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(obj.Data)))
		w.Header().Set("Content-Length", strconv.Itoa(end-start+1))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(obj.Data[start : end+1])
		return
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Data)
}

func (h *handler) headObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	info, err := h.store.HeadObject(r.Context(), vars["bucket"], vars["key"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	setObjectHeaders(w, info, vars["key"])
	w.Header().Set("Content-Length", strconv.FormatUint(info.Size, 10))
	w.WriteHeader(http.StatusOK)
}

func (h *handler) putObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrorStatus(w, r, http.StatusBadRequest, "InvalidArgument", "could not read request body")
		return
	}

	info, err := h.store.PutObject(r.Context(), vars["bucket"], vars["key"], data, r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", quoteETag(info.ETag))
	w.WriteHeader(http.StatusOK)
}

func (h *handler) deleteObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	// Idempotent: NoSuchBucket/NoSuchKey still report 204.
	err := h.store.DeleteObject(r.Context(), vars["bucket"], vars["key"])
	if err != nil && !bd.IsNotFound(err) {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func setObjectHeaders(w http.ResponseWriter, info bd.ObjectInfo, key string) {
	contentType := info.ContentType
	if contentType == "" {
		contentType = defaultMimeType
	}
	w.Header().Set("ETag", quoteETag(info.ETag))
	w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, path.Base(key)))
}

// parseRange parses a single "bytes=a-b" Range header. hasRange reports
// whether a Range header was present at all; ok reports whether it was
// satisfiable against size.
func parseRange(header string, size int) (start, end int, hasRange, ok bool) {
	if header == "" {
		return 0, 0, false, false
	}
	spec := strings.TrimPrefix(header, "bytes=")
	if spec == header {
		return 0, 0, true, false
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, true, false
	}

	var err error
	if parts[0] == "" {
		// Suffix range "bytes=-N": last N bytes.
		n, convErr := strconv.Atoi(parts[1])
		if convErr != nil || n <= 0 {
			return 0, 0, true, false
		}
		start = size - n
		if start < 0 {
			start = 0
		}
		end = size - 1
	} else {
		start, err = strconv.Atoi(parts[0])
		if err != nil {
			return 0, 0, true, false
		}
		if parts[1] == "" {
			end = size - 1
		} else {
			end, err = strconv.Atoi(parts[1])
			if err != nil {
				return 0, 0, true, false
			}
		}
	}

	if start < 0 || end >= size || start > end {
		return 0, 0, true, false
	}
	return start, end, true, true
}

func queryInt(q map[string][]string, key string, fallback int) int {
	values, ok := q[key]
	if !ok || len(values) == 0 || values[0] == "" {
		return fallback
	}
	n, err := strconv.Atoi(values[0])
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeXML(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	writeErrorStatus(w, r, status, code, err.Error())
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeXML(w, status, ErrorResponse{
		Code:      code,
		Message:   message,
		Resource:  r.URL.Path,
		RequestID: w.Header().Get("x-amz-request-id"),
	})
}

// errorStatus maps the boxdrive error taxonomy onto HTTP status codes.
func errorStatus(err error) (int, string) {
	switch {
	case bd.IsNoSuchBucket(err):
		return http.StatusNotFound, "NoSuchBucket"
	case bd.IsNoSuchKey(err):
		return http.StatusNotFound, "NoSuchKey"
	case bd.IsBucketAlreadyExists(err):
		return http.StatusConflict, "BucketAlreadyExists"
	case bd.IsInvalidArgument(err):
		return http.StatusBadRequest, "InvalidArgument"
	default:
		return http.StatusInternalServerError, "InternalError"
	}
}
