package boxdrive

import "strings"

// ValidateBucketName checks a bucket name against the S3 naming rules:
// 3-63 chars, lowercase alphanumerics/hyphens/dots, must not start or end
// with a hyphen.
func ValidateBucketName(name BucketName) error {
	if len(name) < 3 || len(name) > 63 {
		return WithContext(ErrInvalidArgument, map[string]interface{}{
			"bucket": name,
			"reason": "length must be between 3 and 63 characters",
		})
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return WithContext(ErrInvalidArgument, map[string]interface{}{
			"bucket": name,
			"reason": "must not start or end with a hyphen",
		})
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '.':
		default:
			return WithContext(ErrInvalidArgument, map[string]interface{}{
				"bucket": name,
				"reason": "must contain only lowercase alphanumerics, hyphens, and dots",
			})
		}
	}
	return nil
}

// ValidateKey checks an object key against: non-empty, no leading slash,
// no embedded NUL.
func ValidateKey(key Key) error {
	if key == "" {
		return WithContext(ErrInvalidArgument, map[string]interface{}{
			"reason": "key must not be empty",
		})
	}
	if strings.HasPrefix(key, "/") {
		return WithContext(ErrInvalidArgument, map[string]interface{}{
			"key":    key,
			"reason": "key must not start with a slash",
		})
	}
	if strings.ContainsRune(key, 0) {
		return WithContext(ErrInvalidArgument, map[string]interface{}{
			"key":    key,
			"reason": "key must not contain a NUL byte",
		})
	}
	return nil
}
