package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"audioscribe/config"
	"audioscribe/logger"
	"audioscribe/model"
)

// MediaStore wraps the MinIO bucket that holds source media. It is the
// upstream listing collaborator: every object under the media prefix is one
// item, identified by its base name. Display metadata (title, author,
// description) rides on object user metadata set by the uploader.
type MediaStore struct {
	client        *minio.Client
	bucket        string
	mediaPrefix   string
	audioPrefix   string
	presignExpiry time.Duration
}

// NewMediaStore connects to MinIO and verifies the bucket, creating it when
// missing so a fresh deployment starts clean.
func NewMediaStore(cfg *config.Config) (*MediaStore, error) {
	logger.Info("connecting to MinIO",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("created bucket", logger.String("bucket", cfg.MinioBucket))
	}

	return &MediaStore{
		client:        client,
		bucket:        cfg.MinioBucket,
		mediaPrefix:   cfg.MediaPrefix,
		audioPrefix:   cfg.AudioPrefix,
		presignExpiry: cfg.PresignExpiry,
	}, nil
}

// ListItems returns every media object under the media prefix, in listing
// order. A listing failure is a connectivity error; callers abort their run
// without touching any state.
func (s *MediaStore) ListItems(ctx context.Context) ([]model.Item, error) {
	var items []model.Item

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.mediaPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list media objects: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") || obj.Size == 0 {
			continue
		}

		// Listing does not carry user metadata; stat each object for it.
		stat, err := s.client.StatObject(ctx, s.bucket, obj.Key, minio.StatObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("stat media object %s: %w", obj.Key, err)
		}

		base := path.Base(obj.Key)
		id := strings.TrimSuffix(base, path.Ext(base))

		items = append(items, model.Item{
			ID:          id,
			Title:       metaOr(stat.UserMetadata, "Title", base),
			Author:      metaOr(stat.UserMetadata, "Author", ""),
			MediaObject: obj.Key,
			Description: metaOr(stat.UserMetadata, "Description", ""),
			UploadTime:  stat.LastModified,
		})
	}

	logger.Info("listed media objects", logger.Int("count", len(items)))
	return items, nil
}

// FetchMedia downloads the item's media object to destPath.
func (s *MediaStore) FetchMedia(ctx context.Context, item model.Item, destPath string) error {
	if err := s.client.FGetObject(ctx, s.bucket, item.MediaObject, destPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download %s: %w", item.MediaObject, err)
	}
	return nil
}

// PublishAudio uploads an extracted audio file next to the source media and
// returns a presigned URL the recognition service can fetch it from.
func (s *MediaStore) PublishAudio(ctx context.Context, id, audioPath string) (string, error) {
	objectKey := s.audioPrefix + id + ".wav"

	if _, err := s.client.FPutObject(ctx, s.bucket, objectKey, audioPath, minio.PutObjectOptions{
		ContentType: "audio/wav",
	}); err != nil {
		return "", fmt.Errorf("upload audio %s: %w", objectKey, err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, s.presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign audio %s: %w", objectKey, err)
	}
	return u.String(), nil
}

func metaOr(meta map[string]string, key, fallback string) string {
	if v, ok := meta[key]; ok && v != "" {
		return v
	}
	return fallback
}
