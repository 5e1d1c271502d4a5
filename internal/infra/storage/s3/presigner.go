package s3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"bazaar/internal/app/policies"
)

var ErrInvalidReference = errors.New("s3: invalid image reference")

// Presigner resolves image references to time-limited GET URLs. References are object keys in the
// configured bucket, optionally written as s3://bucket/key; http(s) URLs pass through unchanged.
type Presigner struct {
	bucket string
	ttl    time.Duration
	client *minio.Client
	logger *slog.Logger
}

// NewPresigner signs against publicEndpoint so the URLs are reachable by clients. Signing is
// local; no request reaches the server until a client follows the URL.
func NewPresigner(publicEndpoint string, useSSL bool, accessKey, secretKey, bucket string, ttl time.Duration, logger *slog.Logger) (*Presigner, error) {
	endpoint := strings.TrimSpace(publicEndpoint)
	if endpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	client, err := minio.New(parseEndpoint(endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey), ""),
		Secure: useSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	return &Presigner{bucket: bucket, ttl: ttl, client: client, logger: logger}, nil
}

func (p *Presigner) ResolveImage(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	bucket, key, err := splitReference(ref, p.bucket)
	if err != nil {
		return "", err
	}
	u, err := p.client.PresignedGetObject(ctx, bucket, key, p.ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("s3: presign %s/%s: %w", bucket, key, err)
	}
	return u.String(), nil
}

// splitReference accepts "key", "/key" and "s3://bucket/key".
func splitReference(ref, defaultBucket string) (string, string, error) {
	if rest, ok := strings.CutPrefix(ref, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		key = strings.Trim(key, "/")
		if !found || bucket == "" || key == "" {
			return "", "", ErrInvalidReference
		}
		return bucket, key, nil
	}
	key := strings.Trim(ref, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", "", ErrInvalidReference
	}
	return defaultBucket, key, nil
}

func parseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var _ policies.ImageResolver = (*Presigner)(nil)
