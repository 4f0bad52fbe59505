package s3storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/codegate/internal/config"
	"github.com/dharsanguruparan/codegate/internal/model"
)

// DefaultLinkExpiry bounds the presigned download link handed to the owner.
const DefaultLinkExpiry = 15 * time.Minute

// objectClient is the subset of *minio.Client used here.
type objectClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Snapshot is the catalog metadata written by a backup. It holds file
// handles, never file contents.
type Snapshot struct {
	TakenAt   time.Time                  `json:"takenAt"`
	Artifacts []model.Artifact           `json:"artifacts"`
	Uploaders []model.AuthorizedUploader `json:"uploaders"`
	Users     int                        `json:"users"`
}

// Storage wraps MinIO/S3 interactions for catalog backups.
type Storage struct {
	client objectClient
	bucket string
	region string
	now    func() time.Time
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return newStorage(client, cfg.S3Bucket, cfg.S3Region), nil
}

func newStorage(client objectClient, bucket, region string) *Storage {
	return &Storage{client: client, bucket: bucket, region: region, now: time.Now}
}

// EnsureBucket makes sure the backup bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// UploadSnapshot writes snap as JSON and returns its object key.
func (s *Storage) UploadSnapshot(ctx context.Context, snap Snapshot) (string, error) {
	if snap.TakenAt.IsZero() {
		snap.TakenAt = s.now().UTC()
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	key := snapshotKey(snap.TakenAt)
	opts := minio.PutObjectOptions{ContentType: "application/json"}
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	return key, nil
}

// PresignURL returns a signed GET URL for an uploaded snapshot.
func (s *Storage) PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = DefaultLinkExpiry
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign snapshot: %w", err)
	}
	return u.String(), nil
}

func snapshotKey(t time.Time) string {
	return "catalog/" + t.UTC().Format("20060102T150405Z") + ".json"
}
