package checkpoints

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const maxSourceBytes = 8 << 20

// Source yields the raw announcement text for one import run.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
	Name() string
}

// FileSource reads announcements from a local file.
type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return f.Path }

func (f FileSource) Read(_ context.Context) ([]byte, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("checkpoints: open %s: %w", f.Path, err)
	}
	defer file.Close()
	return io.ReadAll(io.LimitReader(file, maxSourceBytes))
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads announcements from an S3 object.
type S3Source struct {
	Client S3API
	Bucket string
	Key    string
}

func (s S3Source) Name() string { return "s3://" + s.Bucket + "/" + s.Key }

func (s S3Source) Read(ctx context.Context) ([]byte, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("checkpoints: get %s: %w", s.Name(), err)
	}
	defer out.Body.Close()
	return io.ReadAll(io.LimitReader(out.Body, maxSourceBytes))
}

// ParseSource maps "s3://bucket/key" to an S3Source and anything else to a
// FileSource. client may be nil when no S3 URI is expected.
func ParseSource(uri string, client S3API) (Source, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		if strings.TrimSpace(uri) == "" {
			return nil, fmt.Errorf("checkpoints: source is required")
		}
		return FileSource{Path: uri}, nil
	}
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return nil, fmt.Errorf("checkpoints: invalid s3 uri %q", uri)
	}
	if client == nil {
		return nil, fmt.Errorf("checkpoints: s3 client required for %q", uri)
	}
	return S3Source{Client: client, Bucket: bucket, Key: key}, nil
}
