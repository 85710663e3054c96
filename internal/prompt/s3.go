package prompt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the subset of the S3 client the mirror needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror copies persisted prompts and their reports to a bucket.
type S3Mirror struct {
	api    PutObjectAPI
	bucket string
	key    string
}

// NewS3Mirror builds a mirror from the default AWS credential chain.
func NewS3Mirror(ctx context.Context, region, bucket, key string) (*S3Mirror, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return NewS3MirrorWithAPI(s3.NewFromConfig(cfg), bucket, key), nil
}

func NewS3MirrorWithAPI(api PutObjectAPI, bucket, key string) *S3Mirror {
	return &S3Mirror{api: api, bucket: bucket, key: key}
}

// Upload stores the prompt under the mirror key and the report JSON next to
// it as <key>.report.json. A nil report is skipped.
func (m *S3Mirror) Upload(ctx context.Context, text string, report []byte) error {
	if err := m.put(ctx, m.key, "text/plain; charset=utf-8", []byte(text)); err != nil {
		return err
	}
	if report == nil {
		return nil
	}
	return m.put(ctx, m.key+".report.json", "application/json", report)
}

func (m *S3Mirror) put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := m.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"fingerprint": Fingerprint(string(body))},
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", m.bucket, key, err)
	}
	return nil
}
