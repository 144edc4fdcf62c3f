// Package s3 provides a core.MediaStore that re-hosts transport media in an
// S3 (or S3 compatible) bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/hupe1980/intakemesh/core"
)

// ErrUntrustedSource is returned for media references outside the allowed
// source hosts.
var ErrUntrustedSource = errors.New("untrusted media source")

// API is the subset of the S3 client used by Store.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Presigner issues time-limited download URLs for stored objects.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Options configures a Store.
type Options struct {
	// Prefix is prepended to every object key.
	Prefix string
	// PublicBaseURL, when set, is used to build returned references
	// (PublicBaseURL/key). Otherwise references are s3://bucket/key.
	PublicBaseURL string
	// HTTPClient downloads the source media.
	HTTPClient *http.Client
	// SourceUser and SourcePassword authenticate media downloads (the
	// messaging provider protects its media URLs with basic auth). They are
	// only sent to SourceHosts.
	SourceUser     string
	SourcePassword string
	// SourceHosts lists the hosts media may be downloaded from; subdomains
	// match. Empty allows any host but never sends credentials.
	SourceHosts []string
	// MaxBytes bounds a single download. Zero means 25 MiB.
	MaxBytes int64
	// Presigner enables PresignGet.
	Presigner Presigner
}

// Store downloads an attachment from its transport URL and uploads it to S3.
type Store struct {
	api    API
	bucket string
	opts   Options
}

// New returns a Store writing to bucket.
func New(api API, bucket string, optFns ...func(o *Options)) *Store {
	opts := Options{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		MaxBytes:   25 << 20,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Store{api: api, bucket: bucket, opts: opts}
}

// Persist copies the attachment into the bucket and returns its reference.
func (s *Store) Persist(ctx context.Context, identity string, att core.Attachment) (string, error) {
	if att.Ref == "" {
		return "", errors.New("attachment without reference")
	}

	body, contentType, err := s.fetch(ctx, att)
	if err != nil {
		return "", err
	}

	key := s.key(identity, contentType)
	if _, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"identity":   identity,
			"source_ref": att.Ref,
		},
	}); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	if s.opts.PublicBaseURL != "" {
		return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/" + key, nil
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// PresignGet returns a time-limited download URL for a reference returned
// by Persist.
func (s *Store) PresignGet(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	if s.opts.Presigner == nil {
		return "", errors.New("presigner not configured")
	}
	key, ok := s.keyOf(ref)
	if !ok {
		return "", fmt.Errorf("reference %q is not stored in bucket %s", ref, s.bucket)
	}

	req, err := s.opts.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (s *Store) fetch(ctx context.Context, att core.Attachment) ([]byte, string, error) {
	src, err := url.Parse(att.Ref)
	if err != nil || (src.Scheme != "http" && src.Scheme != "https") || src.Host == "" {
		return nil, "", fmt.Errorf("%w: %q", ErrUntrustedSource, att.Ref)
	}
	trusted := s.trusted(src.Hostname())
	if len(s.opts.SourceHosts) > 0 && !trusted {
		return nil, "", fmt.Errorf("%w: host %s", ErrUntrustedSource, src.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media request: %w", err)
	}
	if trusted && s.opts.SourceUser != "" {
		req.SetBasicAuth(s.opts.SourceUser, s.opts.SourcePassword)
	}

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("download media: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	if int64(len(body)) > s.opts.MaxBytes {
		return nil, "", fmt.Errorf("media exceeds %d bytes", s.opts.MaxBytes)
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return body, contentType, nil
}

func (s *Store) trusted(host string) bool {
	host = strings.ToLower(host)
	for _, h := range s.opts.SourceHosts {
		h = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "."))
		if h != "" && (host == h || strings.HasSuffix(host, "."+h)) {
			return true
		}
	}
	return false
}

var preferredExt = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
	"video/mp4":       ".mp4",
	"audio/ogg":       ".ogg",
}

func (s *Store) key(identity, contentType string) string {
	ext, ok := preferredExt[contentType]
	if !ok {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	owner := strings.TrimPrefix(strings.TrimPrefix(identity, "whatsapp:"), "+")
	return path.Join(s.opts.Prefix, "media", owner, uuid.NewString()+ext)
}

func (s *Store) keyOf(ref string) (string, bool) {
	if rest, ok := strings.CutPrefix(ref, "s3://"+s.bucket+"/"); ok {
		return rest, true
	}
	if s.opts.PublicBaseURL != "" {
		if rest, ok := strings.CutPrefix(ref, strings.TrimRight(s.opts.PublicBaseURL, "/")+"/"); ok {
			return rest, true
		}
	}
	return "", false
}
