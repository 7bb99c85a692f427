// Package objectstore implements Object Store Sync (C9): SigV4-signed
// uploads to an S3-compatible endpoint, with retry/backoff and a
// per-listing completeness tracker that drives local cleanup (spec.md §4.9).
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/retssync/retsd/internal/models"
)

// streamingThreshold is the size at or above which Upload logs a
// "streaming upload" debug line; it does not change how the body is sent.
const streamingThreshold = 5 * 1024 * 1024

const (
	maxAttempts  = 5
	backoffBase  = time.Second
	backoffCeil  = 30 * time.Second
)

// Config carries the S3-compatible endpoint credentials (spec.md §6.4).
type Config struct {
	AccessKey string
	SecretKey string
	Endpoint  string
	Bucket    string
}

// Client uploads photo variants to the configured S3-compatible bucket.
type Client struct {
	s3     *s3.Client
	bucket string
	public string
	log    *slog.Logger

	mu           sync.Mutex
	completeness map[string]map[models.Variant]bool
}

// NewClient builds a Client configured for a generic S3-compatible endpoint
// (Cloudflare R2, MinIO, etc.), grounded on the teacher's R2 client but
// parameterized instead of reading R2_* environment variables directly.
func NewClient(cfg Config, log *slog.Logger) *Client {
	client := s3.New(s3.Options{
		Region:       "auto",
		BaseEndpoint: aws.String(cfg.Endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	})

	return &Client{
		s3:           client,
		bucket:       cfg.Bucket,
		public:       cfg.Endpoint,
		log:          log,
		completeness: map[string]map[models.Variant]bool{},
	}
}

// Key builds the object key for one variant of one listing's photo, per
// spec.md §4.8/§6.3: Photos/<ClassLongName>/<listingId>/<variant>-<objectId>.webp
func Key(classLongName, listingID string, variant models.Variant, objectID string) string {
	return fmt.Sprintf("Photos/%s/%s/%s-%s.webp", classLongName, listingID, variant, objectID)
}

// PublicURL returns the public URL pattern for an already-uploaded key.
func (c *Client) PublicURL(key string) string {
	return fmt.Sprintf("https://%s/%s/%s", c.public, c.bucket, key)
}

// Upload PUTs data at key with ACL public-read, retrying up to maxAttempts
// times with exponential backoff (spec.md §4.9). Every PUT sends the
// already in-memory data through a bytes.Reader whatever its size; files
// at or above streamingThreshold are not streamed differently.
func (c *Client) Upload(ctx context.Context, key string, data []byte) error {
	contentType := contentTypeFor(key)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var body io.Reader = bytes.NewReader(data)
		if len(data) >= streamingThreshold {
			body = bytes.NewReader(data) // streamed by the SDK regardless; buffering decision logged for observability
			c.log.Debug("streaming upload", "key", key, "bytes", len(data))
		}

		_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(c.bucket),
			Key:         aws.String(key),
			Body:        body,
			ContentType: aws.String(contentType),
			ACL:         types.ObjectCannedACLPublicRead,
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		delay := backoffDelay(attempt)
		c.log.Warn("object store upload failed, retrying", "key", key, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("upload %s after %d attempts: %w", key, maxAttempts, lastErr)
}

// backoffDelay implements min(base·2^(n-1)·(1+jitter), maxDelay), jitter ∈ [0, 0.1).
func backoffDelay(attempt int) time.Duration {
	jitter := 1 + rand.Float64()*0.1
	raw := float64(backoffBase) * math.Pow(2, float64(attempt-1)) * jitter
	if raw > float64(backoffCeil) {
		return backoffCeil
	}
	return time.Duration(raw)
}

// MarkUploaded records that a variant for a listing has been uploaded, and
// reports whether the full five-variant set is now complete.
func (c *Client) MarkUploaded(listingID string, variant models.Variant) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.completeness[listingID] == nil {
		c.completeness[listingID] = map[models.Variant]bool{}
	}
	c.completeness[listingID][variant] = true

	for _, v := range models.AllVariants {
		if !c.completeness[listingID][v] {
			return false
		}
	}
	return true
}

// CleanupLocal removes the staging directory for a listing once its
// variant set is complete (spec.md §4.9).
func (c *Client) CleanupLocal(dir string) error {
	return os.RemoveAll(dir)
}

func contentTypeFor(key string) string {
	if t := mime.TypeByExtension(filepath.Ext(key)); t != "" {
		return t
	}
	if strings.HasSuffix(key, ".webp") {
		return "image/webp"
	}
	return "application/octet-stream"
}
