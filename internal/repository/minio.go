package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RubachokBoss/plagiarism-ledger/pkg/hash"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// checksumMetaKey is stored as X-Amz-Meta-Ledger-Checksum.
const checksumMetaKey = "Ledger-Checksum"

type SnapshotInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

type SnapshotRepository interface {
	Upload(ctx context.Context, key string, data []byte) (*SnapshotInfo, error)
	Download(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context) ([]SnapshotInfo, error)
	Latest(ctx context.Context) (*SnapshotInfo, error)
	Prefix() string
}

type MinIOSnapshotRepository struct {
	client *minio.Client
	bucket string
	region string
	prefix string
	hasher hash.Hasher
	logger zerolog.Logger

	ensureMu      sync.Mutex
	bucketEnsured bool
}

func NewMinIOSnapshotRepository(endpoint, accessKey, secretKey, bucket, region, prefix string, useSSL bool, logger zerolog.Logger) (*MinIOSnapshotRepository, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	logger.Info().
		Str("endpoint", endpoint).
		Str("bucket", bucket).
		Bool("ssl", useSSL).
		Msg("MinIO snapshot storage configured")

	return &MinIOSnapshotRepository{
		client: client,
		bucket: bucket,
		region: region,
		prefix: prefix,
		hasher: hash.NewHasher(hash.SHA256),
		logger: logger,
	}, nil
}

func (r *MinIOSnapshotRepository) Prefix() string {
	return r.prefix
}

func (r *MinIOSnapshotRepository) ensureBucket(ctx context.Context) error {
	r.ensureMu.Lock()
	defer r.ensureMu.Unlock()
	if r.bucketEnsured {
		return nil
	}

	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := r.client.MakeBucket(ctx, r.bucket, minio.MakeBucketOptions{Region: r.region}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		r.logger.Info().Str("bucket", r.bucket).Msg("Created new bucket")
	}

	r.bucketEnsured = true
	return nil
}

func (r *MinIOSnapshotRepository) Upload(ctx context.Context, key string, data []byte) (*SnapshotInfo, error) {
	if err := r.ensureBucket(ctx); err != nil {
		return nil, err
	}

	checksum, err := r.hasher.Calculate(data)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum snapshot: %w", err)
	}

	uploadInfo, err := r.client.PutObject(ctx, r.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "text/plain; charset=utf-8",
		UserMetadata: map[string]string{checksumMetaKey: checksum},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload snapshot: %w", err)
	}

	r.logger.Info().
		Str("bucket", r.bucket).
		Str("key", key).
		Str("etag", uploadInfo.ETag).
		Int("size", len(data)).
		Msg("Ledger snapshot uploaded")

	return &SnapshotInfo{
		Key:          key,
		Size:         uploadInfo.Size,
		Checksum:     checksum,
		LastModified: uploadInfo.LastModified,
	}, nil
}

func (r *MinIOSnapshotRepository) Download(ctx context.Context, key string) ([]byte, error) {
	if err := r.ensureBucket(ctx); err != nil {
		return nil, err
	}

	objInfo, err := r.client.StatObject(ctx, r.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("snapshot %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	object, err := r.client.GetObject(ctx, r.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := verifySnapshot(r.hasher, data, snapshotChecksum(objInfo)); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", key, err)
	}

	r.logger.Debug().
		Str("bucket", r.bucket).
		Str("key", key).
		Int64("size", objInfo.Size).
		Msg("Ledger snapshot downloaded")

	return data, nil
}

func (r *MinIOSnapshotRepository) List(ctx context.Context) ([]SnapshotInfo, error) {
	if err := r.ensureBucket(ctx); err != nil {
		return nil, err
	}

	var snapshots []SnapshotInfo
	objectCh := r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{
		Prefix:    r.prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", object.Err)
		}
		snapshots = append(snapshots, SnapshotInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}

	sortSnapshots(snapshots)
	return snapshots, nil
}

func (r *MinIOSnapshotRepository) Latest(ctx context.Context) (*SnapshotInfo, error) {
	snapshots, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("no snapshots under %q: %w", r.prefix, ErrNotFound)
	}
	latest := snapshots[len(snapshots)-1]
	return &latest, nil
}

// SnapshotKey names a snapshot by its save time so keys sort chronologically.
func SnapshotKey(prefix string, savedAt time.Time, ext string) string {
	return fmt.Sprintf("%sledger-%s.%s", prefix, savedAt.UTC().Format("20060102T150405.000000000Z"), strings.TrimPrefix(ext, "."))
}

func snapshotChecksum(info minio.ObjectInfo) string {
	if v, ok := info.UserMetadata[checksumMetaKey]; ok {
		return v
	}
	return info.Metadata.Get("X-Amz-Meta-" + checksumMetaKey)
}

// verifySnapshot accepts objects without a stored checksum.
func verifySnapshot(hasher hash.Hasher, data []byte, expected string) error {
	if expected == "" {
		return nil
	}
	ok, err := hasher.Verify(data, expected)
	if err != nil {
		return fmt.Errorf("failed to verify checksum: %w", err)
	}
	if !ok {
		return ErrChecksumMismatch
	}
	return nil
}

func sortSnapshots(snapshots []SnapshotInfo) {
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].LastModified.Equal(snapshots[j].LastModified) {
			return snapshots[i].Key < snapshots[j].Key
		}
		return snapshots[i].LastModified.Before(snapshots[j].LastModified)
	})
}
