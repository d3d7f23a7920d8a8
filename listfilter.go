package boxdrive

import (
	"sort"
	"strings"
)

// percentEncodeSafe percent-encodes s with safe set "-_./*": ASCII
// letters/digits plus the safe set pass through unescaped (unlike Python's
// urllib.parse.quote, '~' is encoded);
// every other byte, including multi-byte UTF-8 sequences, is percent-encoded.
func percentEncodeSafe(s string) string {
	const safe = "-_./*"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case strings.IndexByte(safe, c) >= 0:
			b.WriteByte(c)
		default:
			b.WriteString("%")
			const hex = "0123456789ABCDEF"
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

func encodeKeysAndPrefixes(objects []ObjectInfo, commonPrefixes []string, encodingType EncodingType) ([]ObjectInfo, []string) {
	if encodingType != EncodingURL {
		return objects, commonPrefixes
	}
	encodedObjects := make([]ObjectInfo, len(objects))
	for i, obj := range objects {
		encodedObjects[i] = obj
		encodedObjects[i].Key = percentEncodeSafe(obj.Key)
	}
	encodedPrefixes := make([]string, len(commonPrefixes))
	for i, p := range commonPrefixes {
		encodedPrefixes[i] = percentEncodeSafe(p)
	}
	return encodedObjects, encodedPrefixes
}

// splitContentsAndPrefixes performs step 5 of the normative algorithm: objects
// whose post-prefix suffix contains delimiter are rolled up into a sorted,
// deduplicated set of common prefixes instead of being returned as contents.
// objects must already be filtered by prefix.
func splitContentsAndPrefixes(objects []ObjectInfo, prefix, delimiter string) ([]ObjectInfo, []string) {
	if delimiter == "" {
		return objects, nil
	}
	plen := len(prefix)
	contents := make([]ObjectInfo, 0, len(objects))
	prefixSet := make(map[string]struct{})
	for _, obj := range objects {
		suffix := obj.Key[plen:]
		if idx := strings.Index(suffix, delimiter); idx >= 0 {
			commonPrefix := obj.Key[:plen+idx+len(delimiter)]
			prefixSet[commonPrefix] = struct{}{}
		} else {
			contents = append(contents, obj)
		}
	}
	commonPrefixes := make([]string, 0, len(prefixSet))
	for p := range prefixSet {
		commonPrefixes = append(commonPrefixes, p)
	}
	sort.Strings(commonPrefixes)
	return contents, commonPrefixes
}

func sortedByKey(objects []ObjectInfo) []ObjectInfo {
	sorted := make([]ObjectInfo, len(objects))
	copy(sorted, objects)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	return sorted
}

// FilterObjectsV1 implements the ListObjects (v1) pagination/listing
// algorithm: prefix filter, sort, marker-based cursor skip, truncation probe,
// delimiter rollup, optional percent-encoding, and next-marker synthesis.
func FilterObjectsV1(objects []ObjectInfo, params ListObjectsV1Params) ListObjectsInfo {
	filtered := objects
	if params.Prefix != "" {
		filtered = filterByPrefix(filtered, params.Prefix)
	}
	filtered = sortedByKey(filtered)

	if params.Marker != "" {
		filtered = filterAfter(filtered, params.Marker)
	}

	isTruncated := len(filtered) > params.MaxKeys
	filtered = truncate(filtered, params.MaxKeys)

	contents, commonPrefixes := splitContentsAndPrefixes(filtered, params.Prefix, params.Delimiter)
	contents, commonPrefixes = encodeKeysAndPrefixes(contents, commonPrefixes, params.EncodingType)

	nextMarker := ""
	if isTruncated {
		if len(commonPrefixes) > 0 {
			nextMarker = commonPrefixes[len(commonPrefixes)-1]
		} else if len(contents) > 0 {
			nextMarker = contents[len(contents)-1].Key
		}
	}

	return ListObjectsInfo{
		Objects:        contents,
		CommonPrefixes: commonPrefixes,
		IsTruncated:    isTruncated,
		NextMarker:     nextMarker,
	}
}

// FilterObjectsV2 implements the ListObjectsV2 variant: the cursor is
// whichever of continuation-token or start-after is set (continuation-token
// taking precedence), and there is no v1-style next-marker synthesis — the
// facade derives a continuation token from the last returned key.
func FilterObjectsV2(objects []ObjectInfo, params ListObjectsV2Params) ListObjectsV2Info {
	filtered := objects
	if params.Prefix != "" {
		filtered = filterByPrefix(filtered, params.Prefix)
	}
	filtered = sortedByKey(filtered)

	after := params.ContinuationToken
	if after == "" {
		after = params.StartAfter
	}
	if after != "" {
		filtered = filterAfter(filtered, after)
	}

	isTruncated := len(filtered) > params.MaxKeys
	filtered = truncate(filtered, params.MaxKeys)

	contents, commonPrefixes := splitContentsAndPrefixes(filtered, params.Prefix, params.Delimiter)
	contents, commonPrefixes = encodeKeysAndPrefixes(contents, commonPrefixes, params.EncodingType)

	nextKey := ""
	if isTruncated && len(contents) > 0 {
		nextKey = contents[len(contents)-1].Key
	}

	return ListObjectsV2Info{
		Objects:             contents,
		CommonPrefixes:      commonPrefixes,
		IsTruncated:         isTruncated,
		NextContinuationKey: nextKey,
	}
}

func filterByPrefix(objects []ObjectInfo, prefix string) []ObjectInfo {
	out := make([]ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if strings.HasPrefix(obj.Key, prefix) {
			out = append(out, obj)
		}
	}
	return out
}

func filterAfter(objects []ObjectInfo, cursor string) []ObjectInfo {
	out := make([]ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key > cursor {
			out = append(out, obj)
		}
	}
	return out
}

func truncate(objects []ObjectInfo, maxKeys int) []ObjectInfo {
	if maxKeys < 0 {
		maxKeys = 0
	}
	if len(objects) <= maxKeys {
		return objects
	}
	return objects[:maxKeys]
}
