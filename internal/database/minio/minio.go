package minio

import (
	"context"
	"fmt"
	"log"

	"forum-bot-service/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewClient connects to MinIO and makes sure the image bucket exists
func NewClient(ctx context.Context, cfg *config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("error initializing MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.ImageBucket)
	if err != nil {
		return nil, fmt.Errorf("error checking if bucket %s exists: %w", cfg.ImageBucket, err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.ImageBucket, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating bucket %s: %w", cfg.ImageBucket, err)
		}
		log.Printf("Created bucket: %s", cfg.ImageBucket)
	}

	log.Println("Successfully initialized MinIO client")
	return client, nil
}
