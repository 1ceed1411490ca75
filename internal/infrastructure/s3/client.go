package s3infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lostfound-sync/internal/config"
)

const defaultTTL = 15 * time.Minute

// Presigner is the part of the S3 presign client the resolver needs.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, cfg *config.Config) *s3.Client {
	var clientOpts []func(*s3.Options)
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...)
}

// ImageResolver turns object keys carried in notification payloads into presigned GET URLs.
type ImageResolver struct {
	presigner Presigner
	bucket    string
	ttl       time.Duration
}

func NewImageResolver(client *s3.Client, bucket string, ttl time.Duration) *ImageResolver {
	return newImageResolver(s3.NewPresignClient(client), bucket, ttl)
}

func newImageResolver(p Presigner, bucket string, ttl time.Duration) *ImageResolver {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ImageResolver{presigner: p, bucket: bucket, ttl: ttl}
}

// ImageURL accepts a bare key, "s3://bucket/key" or an absolute http(s) URL, which is returned
// unchanged.
func (r *ImageResolver) ImageURL(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	bucket, key := r.bucket, strings.TrimPrefix(ref, "/")
	if rest, ok := strings.CutPrefix(ref, "s3://"); ok {
		b, k, found := strings.Cut(rest, "/")
		if !found || k == "" {
			return "", fmt.Errorf("malformed s3 reference %q", ref)
		}
		bucket, key = b, k
	}
	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return req.URL, nil
}
