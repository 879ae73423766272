package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"whisper-backend/internal/config"
	"whisper-backend/internal/models"
)

// Exporter persists completed transcripts as artifacts outside the job
// store, for consumers that want files rather than polling.
type Exporter interface {
	Export(ctx context.Context, jobID string, result models.TranscriptionResult) (string, error)
}

// NewExporter picks an exporter from config. It returns nil when export is
// disabled.
func NewExporter(ctx context.Context, cfg config.Config) (Exporter, error) {
	switch cfg.TranscriptExport {
	case "", "none":
		return nil, nil
	case "local":
		return &localExporter{baseDir: cfg.ExportDir}, nil
	case "s3":
		if cfg.ExportS3Bucket == "" {
			return nil, fmt.Errorf("TRANSCRIPT_EXPORT=s3 requires EXPORT_S3_BUCKET")
		}
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &s3Exporter{client: client, bucket: cfg.ExportS3Bucket}, nil
	default:
		return nil, fmt.Errorf("unknown TRANSCRIPT_EXPORT %q", cfg.TranscriptExport)
	}
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ExportS3Region),
	}
	if cfg.ExportS3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.ExportS3Endpoint,
					HostnameImmutable: cfg.ExportS3PathStyle,
					SigningRegion:     cfg.ExportS3Region,
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
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ExportS3PathStyle
	}), nil
}

func transcriptBody(jobID string, result models.TranscriptionResult) ([]byte, error) {
	return json.MarshalIndent(struct {
		JobID string `json:"job_id"`
		models.TranscriptionResult
	}{JobID: jobID, TranscriptionResult: result}, "", "  ")
}

type localExporter struct {
	baseDir string
}

func (l *localExporter) Export(_ context.Context, jobID string, result models.TranscriptionResult) (string, error) {
	body, err := transcriptBody(jobID, result)
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	path := filepath.Join(l.baseDir, jobID+".json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

type s3Exporter struct {
	client *s3.Client
	bucket string
}

func (s *s3Exporter) Export(ctx context.Context, jobID string, result models.TranscriptionResult) (string, error) {
	body, err := transcriptBody(jobID, result)
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	key := jobID + ".json"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
