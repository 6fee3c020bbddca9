// Package bucket wraps an S3-compatible object store. The default endpoint
// is the GCS interoperability API, but anything speaking the S3 protocol
// (MinIO, R2, AWS itself) works.
package bucket

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"media-jobs/internal/config"
)

// Client reads and writes objects in the private and public buckets.
type Client struct {
	s3      *s3.Client
	Private string
	Public  string
}

// New builds a client from config. Explicit access keys take precedence;
// otherwise the usual AWS credential chain applies.
func New(ctx context.Context, cfg config.Config) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.BucketRegion),
	}
	if cfg.BucketAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.BucketAccessKey, cfg.BucketSecretKey, ""),
		))
	}
	if cfg.BucketEndpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.BucketEndpoint,
					HostnameImmutable: cfg.BucketPathStyle,
					SigningRegion:     cfg.BucketRegion,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.BucketPathStyle
	})
	return &Client{
		s3:      client,
		Private: cfg.PrivateBucketName,
		Public:  cfg.PublicBucketName,
	}, nil
}

// Upload writes an object. The key may carry a leading slash from path
// derivation; object keys never do.
func (c *Client) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey(key)),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := c.s3.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object %s/%s: %w", bucket, objectKey(key), err)
	}
	return nil
}

// Download reads an entire object into memory. Only use for objects with a
// bounded size, previews and embeddings; media originals go through
// DownloadToFile.
func (c *Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, objectKey(key), err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, objectKey(key), err)
	}
	return data, nil
}

// DownloadToFile streams an object to a local path and reports its size.
func (c *Client) DownloadToFile(ctx context.Context, bucket, key, path string) (int64, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey(key)),
	})
	if err != nil {
		return 0, fmt.Errorf("get object %s/%s: %w", bucket, objectKey(key), err)
	}
	defer out.Body.Close()

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	n, err := io.Copy(f, out.Body)
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}

func objectKey(key string) string {
	return strings.TrimPrefix(key, "/")
}
