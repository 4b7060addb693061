// Package imagestore turns configured install image locations into URLs a
// management controller can download from.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-logr/logr"

	"github.com/jacobweinstock/vmedia"
)

const (
	// DefaultTTL of presigned URLs. The controller may read the image for the whole install.
	DefaultTTL    = 4 * time.Hour
	defaultRegion = "us-east-1"
)

// Presigner creates time limited GET URLs for objects.
type Presigner interface {
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Resolver resolves image URLs. http and https URLs are returned unchanged,
// s3://bucket/key URLs are presigned.
type Resolver struct {
	Presigner Presigner
	TTL       time.Duration
	Logger    logr.Logger
}

// Option for setting optional Resolver values.
type Option func(*Resolver)

func WithPresigner(p Presigner) Option {
	return func(r *Resolver) { r.Presigner = p }
}

func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.TTL = ttl }
}

func WithLogger(l logr.Logger) Option {
	return func(r *Resolver) { r.Logger = l }
}

// New returns a Resolver. Without a Presigner s3:// URLs are a configuration error.
func New(opts ...Option) *Resolver {
	r := &Resolver{TTL: DefaultTTL, Logger: logr.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the URL to hand to the management controller. Anything that
// is not an s3:// URL, including nfs, cifs and host:/path forms, is passed through
// unchanged for the controller to interpret.
func (r *Resolver) Resolve(ctx context.Context, imageURL string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(imageURL), "s3://") {
		return imageURL, nil
	}
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", &vmedia.ConfigurationError{Name: "iso_url", Reason: err.Error()}
	}

	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", &vmedia.ConfigurationError{Name: "iso_url", Reason: "s3 urls must be of the form s3://bucket/key"}
	}
	if r.Presigner == nil {
		return "", &vmedia.ConfigurationError{Name: "s3", Reason: "an s3 image needs the s3 section configured"}
	}
	signed, err := r.Presigner.PresignGet(ctx, bucket, key, r.TTL)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", imageURL, err)
	}
	r.Logger.V(1).Info("presigned image url", "bucket", bucket, "key", key, "ttl", r.TTL.String())

	return signed, nil
}

// S3Config locates an S3 compatible object store.
type S3Config struct {
	// Endpoint is a host:port or URL. Empty means AWS.
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// S3 presigns GET requests against an S3 compatible object store.
type S3 struct {
	presign *s3.PresignClient
}

// NewS3 builds an S3 client. Without static keys the default AWS credential chain is used.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if (cfg.AccessKey == "") != (cfg.SecretKey == "") {
		return nil, errors.New("s3 access_key and secret_key must be set together")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint != "" && !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &S3{presign: s3.NewPresignClient(client)}, nil
}

// PresignGet returns a GET URL for bucket/key valid for ttl.
func (c *S3) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
