package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/fieldline/fieldline"
)

// S3Exporter uploads CSV exports of custom-field-capable objects to S3 (or an
// S3-compatible endpoint such as MinIO).
type S3Exporter struct {
	cfg      fieldline.ExportConfig
	exporter *CSVExporter

	// Endpoint overrides the AWS endpoint, used with local S3 stand-ins.
	Endpoint string
}

// NewS3Exporter creates an exporter for the given destination.
func NewS3Exporter(cfg fieldline.ExportConfig) *S3Exporter {
	return &S3Exporter{cfg: cfg, exporter: NewCSVExporter()}
}

// Export renders the objects as CSV and uploads the file under the configured
// prefix. The object key embeds the kind name and a UTC timestamp so repeated
// exports never clobber each other.
func (e *S3Exporter) Export(
	ctx context.Context,
	kindName string,
	defs []*fieldline.FieldDefinition,
	objs []*fieldline.ObjectRecord,
) (string, error) {
	var buf bytes.Buffer
	if err := e.exporter.Write(&buf, defs, objs); err != nil {
		return "", err
	}

	client, err := e.client(ctx)
	if err != nil {
		return "", err
	}
	if err := e.ensureBucket(ctx, client); err != nil {
		return "", err
	}

	key := path.Join(e.cfg.S3Prefix,
		fmt.Sprintf("%s-%s.csv", kindName, time.Now().UTC().Format("20060102T150405Z")))

	uploader := manager.NewUploader(client)
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.cfg.S3Bucket),
		Key:         aws.String(key),
		Body:        &buf,
		ContentType: aws.String("text/csv"),
	}); err != nil {
		return "", fieldline.NewInternalError("upload csv export", err)
	}

	zap.S().Infow("csv export uploaded",
		"bucket", e.cfg.S3Bucket, "key", key, "objects", len(objs))
	return key, nil
}

func (e *S3Exporter) client(ctx context.Context) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(e.cfg.S3Region),
	}
	// Static credentials from the environment override the default chain;
	// local S3 stand-ins have no instance metadata to fall back to.
	if accessKey := os.Getenv("S3_ACCESS_KEY"); accessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, os.Getenv("S3_SECRET_KEY"), "")))
	}
	if e.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(e.Endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fieldline.NewInternalError("load aws config", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if e.Endpoint != "" {
			o.UsePathStyle = true
		}
	}), nil
}

func (e *S3Exporter) ensureBucket(ctx context.Context, client *s3.Client) error {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(e.cfg.S3Bucket)}); err == nil {
		return nil
	}
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(e.cfg.S3Bucket)}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			code := apiErr.ErrorCode()
			if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
				return nil
			}
		}
		return fieldline.NewInternalError("create export bucket", err)
	}
	return nil
}
