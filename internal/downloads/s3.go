package downloads

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitfetch/internal/utils"
)

// S3Backend serves s3://bucket/key mirrors. The AWS config is loaded on first
// use so plain HTTP sessions never touch credentials.
type S3Backend struct {
	profile string

	once    sync.Once
	client  *s3.Client
	initErr error
}

func NewS3Backend(profile string) *S3Backend {
	return &S3Backend{profile: profile}
}

func (b *S3Backend) getClient(ctx context.Context) (*s3.Client, error) {
	b.once.Do(func() {
		opts := []func(*config.LoadOptions) error{config.WithRetryMode("adaptive")}
		if b.profile != "" {
			opts = append(opts, config.WithSharedConfigProfile(b.profile))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			b.initErr = fmt.Errorf("error loading AWS config: %v", err)
			return
		}
		b.client = s3.NewFromConfig(cfg)
	})
	return b.client, b.initErr
}

func (b *S3Backend) Fetch(ctx context.Context, link, dest string, progress func(downloaded, total int64)) (int64, error) {
	bucket, key, err := ParseS3URL(link)
	if err != nil {
		return 0, err
	}
	client, err := b.getClient(ctx)
	if err != nil {
		return 0, err
	}
	total := int64(-1)
	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("error getting S3 object info: %v", err)
	}
	if head.ContentLength != nil {
		total = *head.ContentLength
	}

	file, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("error creating output file: %v", err)
	}
	defer file.Close()

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = 4 * utils.DefaultBufferSize
		d.Concurrency = 1
	})
	pw := &progressWriterAt{w: file, total: total, progress: progress}
	log.Debug().Str("op", "downloads/s3").Msgf("downloading s3://%s/%s", bucket, key)
	n, err := downloader.Download(ctx, pw, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return n, fmt.Errorf("error downloading S3 object: %v", err)
	}
	return n, file.Sync()
}

// ReadObject returns the whole object behind link. Used for small documents
// such as the version manifest.
func (b *S3Backend) ReadObject(ctx context.Context, link string) ([]byte, error) {
	bucket, key, err := ParseS3URL(link)
	if err != nil {
		return nil, err
	}
	client, err := b.getClient(ctx)
	if err != nil {
		return nil, err
	}
	buf := manager.NewWriteAtBuffer([]byte{})
	downloader := manager.NewDownloader(client)
	if _, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, fmt.Errorf("error reading s3://%s/%s: %v", bucket, key, err)
	}
	return buf.Bytes(), nil
}

func ParseS3URL(link string) (string, string, error) {
	trimmed := strings.TrimPrefix(link, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid S3 URL format: %s", link)
	}
	return parts[0], parts[1], nil
}

type progressWriterAt struct {
	w        *os.File
	total    int64
	written  atomic.Int64
	progress func(downloaded, total int64)
}

func (p *progressWriterAt) WriteAt(b []byte, off int64) (int, error) {
	n, err := p.w.WriteAt(b, off)
	p.progress(p.written.Add(int64(n)), p.total)
	return n, err
}
