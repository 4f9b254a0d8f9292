// Package storage mirrors images from forum posts into object storage.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"forum-bot-service/internal/client"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/minio/minio-go/v7"
)

// MaxImageSize is the largest image that is mirrored
const MaxImageSize = 10 << 20

var (
	ErrNotAnImage    = errors.New("content is not an image")
	ErrImageTooLarge = errors.New("image is too large")
)

// ObjectStore is the subset of *minio.Client the mirror uses
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// ImageMirror downloads post images into a bucket and hands out presigned links to them
type ImageMirror struct {
	store  ObjectStore
	http   *retryablehttp.Client
	bucket string
	expiry time.Duration
	logger *log.Logger
}

// NewImageMirror creates a new ImageMirror
func NewImageMirror(store ObjectStore, httpClient *retryablehttp.Client, bucket string, expiry time.Duration, logger *log.Logger) *ImageMirror {
	return &ImageMirror{
		store:  store,
		http:   httpClient,
		bucket: bucket,
		expiry: expiry,
		logger: logger,
	}
}

// Mirror stores the image under a name derived from its URL and returns a presigned GET URL
func (m *ImageMirror) Mirror(ctx context.Context, imageURL string) (string, error) {
	data, contentType, err := m.download(ctx, imageURL)
	if err != nil {
		return "", err
	}

	objectName := objectNameFor(imageURL, contentType)
	_, err = m.store.PutObject(ctx, m.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	presigned, err := m.store.PresignedGetObject(ctx, m.bucket, objectName, m.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign image: %w", err)
	}

	m.logger.Printf("Mirrored image %s as %s/%s", imageURL, m.bucket, objectName)
	return presigned.String(), nil
}

func (m *ImageMirror) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build image request: %w", err)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	if err := client.CheckResponse(resp); err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > MaxImageSize {
		return nil, "", ErrImageTooLarge
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("%w: %s", ErrNotAnImage, contentType)
	}
	return data, contentType, nil
}

func objectNameFor(imageURL, contentType string) string {
	sum := sha256.Sum256([]byte(imageURL))
	ext := ""
	if u, err := url.Parse(imageURL); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	if ext == "" {
		ext = "." + strings.TrimPrefix(contentType, "image/")
	}
	return "posts/" + hex.EncodeToString(sum[:]) + ext
}
