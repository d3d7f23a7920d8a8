package boxdrive

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MinIOConfig describes a path-style S3-compatible endpoint (MinIO, and any
// other self-hosted S3-compatible object store).
type MinIOConfig struct {
	Endpoint        string // e.g. "localhost:9000" or "minio.example.com"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// NewMinIOBackedStore builds an S3BackedStore configured for path-style
// addressing against a MinIO (or compatible) endpoint, for local development.
func NewMinIOBackedStore(cfg MinIOConfig) *S3BackedStore {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)

	client := s3.New(s3.Options{
		BaseEndpoint: aws.String(endpoint),
		Region:       "us-east-1", // MinIO ignores regions but the SDK requires one.
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: true,
	})
	return NewS3BackedStore(client)
}
