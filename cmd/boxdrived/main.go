// boxdrived - S3-compatible object store frontage
//
// Fronts an in-memory store, a GitLab repository, or a real S3/MinIO/GCS
// bucket behind the same S3 HTTP/XML subset.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	bd "github.com/cospectrum/boxdrive"
	"github.com/cospectrum/boxdrive/internal/s3facade"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "locks":
			runLocks(os.Args[2:])
			return
		case "help", "--help", "-h":
			printHelp()
			return
		}
	}
	printHelp()
}

func printHelp() {
	fmt.Println(`boxdrived - S3-compatible object store frontage

Usage:
  boxdrived serve --backend={memory,gitlab,s3,gcs,minio} [flags]  Start the HTTP facade
  boxdrived locks list|cleanup|release [flags]                    Administer distributed locks

Serve flags:
  --addr string           Address to listen on (default ":9000")
  --backend string         memory | gitlab | s3 | gcs | minio (default "memory")
  --gitlab-repo-id int     GitLab project ID (backend=gitlab)
  --gitlab-branch string   GitLab branch (backend=gitlab, default "main")
  --gitlab-token string    GitLab access token (backend=gitlab), or $GITLAB_TOKEN
  --gitlab-api-url string  GitLab API URL (backend=gitlab)
  --minio-endpoint string  MinIO endpoint host:port (backend=minio)
  --minio-access-key string
  --minio-secret-key string
  --gcs-project string     GCP project ID (backend=gcs)
  --redis                  Enable Redis-backed distributed locking for backend=gitlab

Locks flags:
  --redis-prefix string    Lock key prefix (default "boxdrive:lock:")
  --min-age duration       Minimum age for cleanup (default 1h)
  --key string             Resource key for release`)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":9000", "address to listen on")
	backend := fs.String("backend", "memory", "memory | gitlab | s3 | gcs | minio")
	gitlabRepoID := fs.Int("gitlab-repo-id", 0, "GitLab project ID")
	gitlabBranch := fs.String("gitlab-branch", "main", "GitLab branch")
	gitlabToken := fs.String("gitlab-token", os.Getenv("GITLAB_TOKEN"), "GitLab access token")
	gitlabAPIURL := fs.String("gitlab-api-url", "", "GitLab API URL")
	minioEndpoint := fs.String("minio-endpoint", "", "MinIO endpoint host:port")
	minioAccessKey := fs.String("minio-access-key", "", "MinIO access key")
	minioSecretKey := fs.String("minio-secret-key", "", "MinIO secret key")
	gcsProject := fs.String("gcs-project", "", "GCP project ID")
	useRedisLock := fs.Bool("redis", false, "enable Redis-backed distributed locking for backend=gitlab")
	fs.Parse(args)

	log.SetFlags(log.Ltime | log.Lshortfile)

	logger, err := bd.NewProductionZapLogger()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics := bd.NewPrometheusMetrics(prometheus.NewRegistry())

	ctx := context.Background()
	store, err := buildStore(ctx, storeConfig{
		backend:        *backend,
		gitlabRepoID:   *gitlabRepoID,
		gitlabBranch:   *gitlabBranch,
		gitlabToken:    *gitlabToken,
		gitlabAPIURL:   *gitlabAPIURL,
		minioEndpoint:  *minioEndpoint,
		minioAccessKey: *minioAccessKey,
		minioSecretKey: *minioSecretKey,
		gcsProject:     *gcsProject,
		useRedisLock:   *useRedisLock,
		logger:         logger,
		metrics:        metrics,
	})
	if err != nil {
		log.Fatalf("failed to build backend %q: %v", *backend, err)
	}

	logger.Info("boxdrived starting", "addr", *addr, "backend", *backend)
	router := s3facade.NewRouter(store)
	if err := http.ListenAndServe(*addr, router); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

type storeConfig struct {
	backend        string
	gitlabRepoID   int
	gitlabBranch   string
	gitlabToken    string
	gitlabAPIURL   string
	minioEndpoint  string
	minioAccessKey string
	minioSecretKey string
	gcsProject     string
	useRedisLock   bool
	logger         bd.Logger
	metrics        bd.Metrics
}

func buildStore(ctx context.Context, cfg storeConfig) (bd.ObjectStore, error) {
	switch cfg.backend {
	case "memory":
		return bd.NewMemoryStore(), nil

	case "gitlab":
		opts := []bd.GitLabStoreOption{
			bd.WithLogger(cfg.logger),
			bd.WithMetrics(cfg.metrics),
			bd.WithCircuitBreaker(bd.NewCircuitBreaker(5, 30*time.Second)),
		}
		if cfg.useRedisLock {
			redisClient := redis.NewClient(bd.RedisOptions())
			opts = append(opts, bd.WithDistributedLock(bd.NewDistributedLockWithOwnedClient(redisClient, "boxdrive:lock:")))
		}
		return bd.NewGitLabStore(bd.GitLabConfig{
			RepoID:      cfg.gitlabRepoID,
			Branch:      cfg.gitlabBranch,
			AccessToken: cfg.gitlabToken,
			APIURL:      cfg.gitlabAPIURL,
		}, opts...)

	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return bd.NewS3BackedStore(s3.NewFromConfig(awsCfg)), nil

	case "minio":
		return bd.NewMinIOBackedStore(bd.MinIOConfig{
			Endpoint:        cfg.minioEndpoint,
			AccessKeyID:     cfg.minioAccessKey,
			SecretAccessKey: cfg.minioSecretKey,
		}), nil

	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create GCS client: %w", err)
		}
		return bd.NewGCSBackedStore(client, cfg.gcsProject), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.backend)
	}
}

func runLocks(args []string) {
	if len(args) == 0 {
		printHelp()
		return
	}

	fs := flag.NewFlagSet("locks", flag.ExitOnError)
	prefix := fs.String("redis-prefix", "boxdrive:lock:", "lock key prefix")
	minAge := fs.Duration("min-age", time.Hour, "minimum age for cleanup")
	key := fs.String("key", "", "resource key for release")
	action := args[0]
	fs.Parse(args[1:])

	log.SetFlags(log.Ltime | log.Lshortfile)
	redisClient := redis.NewClient(bd.RedisOptions())
	manager := bd.NewLockManager(redisClient, *prefix, &bd.NoOpLogger{}, &bd.NoOpMetrics{})
	ctx := context.Background()

	switch action {
	case "list":
		locks, err := manager.ListLocks(ctx)
		if err != nil {
			log.Fatalf("list locks: %v", err)
		}
		for _, l := range locks {
			fmt.Printf("%s\tttl=%s\tacquired=%s\n", l.Key, l.TTL, l.AcquiredAt.Format(time.RFC3339))
		}

	case "cleanup":
		n, err := manager.CleanupOrphanedLocks(ctx, *minAge)
		if err != nil {
			log.Fatalf("cleanup locks: %v", err)
		}
		fmt.Printf("removed %d orphaned lock(s)\n", n)

	case "release":
		if *key == "" {
			log.Fatal("--key is required for locks release")
		}
		if err := manager.ForceRelease(ctx, *key); err != nil {
			log.Fatalf("release lock: %v", err)
		}
		fmt.Printf("released %s\n", *key)

	default:
		printHelp()
	}
}
