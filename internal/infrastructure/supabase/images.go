// Package supabase resolves notification image references against Supabase Storage.
package supabase

import (
	"context"
	"fmt"
	"strings"

	storage "github.com/supabase-community/storage-go"
)

// URLer is the part of the storage client the resolver needs.
type URLer interface {
	GetPublicUrl(bucketID, filePath string, urlOptions ...storage.UrlOptions) storage.SignedUrlResponse
}

// ImageResolver maps payload references to public object URLs. A reference is a path inside the
// default bucket, or "storage:bucket/path" to name the bucket.
type ImageResolver struct {
	client URLer
	bucket string
}

// NewImageResolver builds a storage client for the project at baseURL.
func NewImageResolver(baseURL, key, bucket string) *ImageResolver {
	client := storage.NewClient(strings.TrimRight(baseURL, "/")+"/storage/v1", key, nil)
	return &ImageResolver{client: client, bucket: bucket}
}

func (r *ImageResolver) ImageURL(_ context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	bucket, path := r.bucket, strings.TrimPrefix(ref, "/")
	if rest, ok := strings.CutPrefix(ref, "storage:"); ok {
		b, p, found := strings.Cut(strings.TrimPrefix(rest, "/"), "/")
		if !found || p == "" {
			return "", fmt.Errorf("malformed storage reference %q", ref)
		}
		bucket, path = b, p
	}
	if path == "" {
		return "", fmt.Errorf("empty image reference")
	}
	resp := r.client.GetPublicUrl(bucket, path)
	if resp.SignedURL == "" {
		return "", fmt.Errorf("no public url for %s/%s", bucket, path)
	}
	return resp.SignedURL, nil
}
