package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/shiimaxx/logs-insights-newrelic-metrics/pkg/models"
)

// S3API is the subset of the S3 client used by Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver stores invocation envelopes in S3, one object per invocation.
type Archiver struct {
	client S3API
	bucket string
	prefix string
}

func NewArchiver(client S3API, bucket, prefix string) *Archiver {
	return &Archiver{client: client, bucket: bucket, prefix: prefix}
}

// Store writes result under <prefix><window start>/<invocationID>.json and returns the key.
func (a *Archiver) Store(ctx context.Context, invocationID string, window models.TimeWindow, result models.InvocationResult) (string, error) {
	body, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}

	key := a.objectKey(invocationID, window)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put object s3://%s/%s: %w", a.bucket, key, err)
	}

	return key, nil
}

func (a *Archiver) objectKey(invocationID string, window models.TimeWindow) string {
	return a.prefix + path.Join(window.Start.UTC().Format(time.RFC3339), invocationID+".json")
}
