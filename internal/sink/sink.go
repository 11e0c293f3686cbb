// Package sink opens the destination of the aggregate MAF: a local file or
// an S3 object addressed as s3://bucket/key.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Writer receives the aggregate. Close commits it; Abort discards it.
type Writer interface {
	io.WriteCloser
	Abort(cause error) error
	Location() string
}

// S3Config configures the S3 client used for s3:// destinations. Credentials
// come from the default AWS chain.
type S3Config struct {
	Region    string
	Endpoint  string // optional; S3 compatible stores such as MinIO
	PathStyle bool
}

// Uploader is the subset of manager.Uploader used by S3 writers.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// ParseS3URL splits s3://bucket/key. ok is false for any other destination.
func ParseS3URL(dest string) (bucket, key string, ok bool, err error) {
	rest, found := strings.CutPrefix(dest, "s3://")
	if !found {
		return "", "", false, nil
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", true, fmt.Errorf("invalid s3 destination %q, want s3://bucket/key", dest)
	}
	return bucket, key, true, nil
}

// Open opens dest for writing.
func Open(ctx context.Context, dest string, cfg S3Config) (Writer, error) {
	bucket, key, isS3, err := ParseS3URL(dest)
	if err != nil {
		return nil, err
	}
	if !isS3 {
		return openFile(dest)
	}
	uploader, err := NewUploader(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewS3Writer(ctx, uploader, bucket, key), nil
}

// NewUploader builds an S3 upload manager from the default AWS configuration.
func NewUploader(ctx context.Context, cfg S3Config) (*manager.Uploader, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return manager.NewUploader(client), nil
}

type fileWriter struct {
	*os.File
	path string
}

func openFile(path string) (*fileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return &fileWriter{File: f, path: path}, nil
}

func (w *fileWriter) Location() string { return w.path }

// Abort closes and removes the partial file.
func (w *fileWriter) Abort(cause error) error {
	w.File.Close()
	return os.Remove(w.path)
}

// S3Writer streams writes into a multipart upload.
type S3Writer struct {
	pw       *io.PipeWriter
	done     chan struct{}
	err      error
	bucket   string
	key      string
	location string
}

// NewS3Writer starts an upload of everything written to the returned writer.
func NewS3Writer(ctx context.Context, uploader Uploader, bucket, key string) *S3Writer {
	pr, pw := io.Pipe()
	w := &S3Writer{
		pw:     pw,
		done:   make(chan struct{}),
		bucket: bucket,
		key:    key,
	}
	go func() {
		out, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        pr,
			ContentType: aws.String("application/gzip"),
		})
		if err == nil && out != nil {
			w.location = out.Location
		}
		pr.CloseWithError(err)
		w.err = err
		close(w.done)
	}()
	return w
}

func (w *S3Writer) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

// Close finishes the stream and waits for the upload to complete.
func (w *S3Writer) Close() error {
	w.pw.Close()
	<-w.done
	if w.err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", w.bucket, w.key, w.err)
	}
	return nil
}

// Abort fails the stream so the upload manager discards the object. It is
// safe to call after a failed Close.
func (w *S3Writer) Abort(cause error) error {
	if cause == nil {
		cause = errors.New("aborted")
	}
	w.pw.CloseWithError(cause)
	<-w.done
	return nil
}

// Location returns the object URL after a successful Close.
func (w *S3Writer) Location() string {
	if w.location != "" {
		return w.location
	}
	return "s3://" + w.bucket + "/" + w.key
}
