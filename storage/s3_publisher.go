package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"hidroweb-scraper/utils"
)

// ObjectPutter is the part of the S3 client the publisher uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads consolidated datasets to a bucket.
type S3Publisher struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *utils.Logger
}

// NewS3Publisher builds a publisher from the default AWS credential chain.
func NewS3Publisher(ctx context.Context, bucket, prefix, region string, logger *utils.Logger) (*S3Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	return NewS3PublisherWithClient(s3.NewFromConfig(awsCfg), bucket, prefix, logger), nil
}

func NewS3PublisherWithClient(client ObjectPutter, bucket, prefix string, logger *utils.Logger) *S3Publisher {
	return &S3Publisher{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Key returns the object key a file is stored under.
func (p *S3Publisher) Key(file string) string {
	prefix := strings.Trim(p.prefix, "/")
	if prefix == "" {
		return filepath.Base(file)
	}
	return path.Join(prefix, filepath.Base(file))
}

// Publish uploads the file at localPath and returns its s3:// URI.
func (p *S3Publisher) Publish(ctx context.Context, localPath string, meta map[string]string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("s3: open %q: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("s3: stat %q: %w", localPath, err)
	}

	key := p.Key(localPath)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("text/csv"),
		Metadata:      meta,
	})
	if err != nil {
		return "", fmt.Errorf("s3: put %s/%s: %w", p.bucket, key, err)
	}

	uri := fmt.Sprintf("s3://%s/%s", p.bucket, key)
	p.logger.Info("[s3] Published %s (%d bytes)", uri, info.Size())
	return uri, nil
}
