package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jlgore/tagsweep/pkg/models"
)

// DefaultDeadLetterPrefix is used when no prefix is configured
const DefaultDeadLetterPrefix = "tagsweep/dead-letter"

// ObjectPutter is the part of the S3 client used by S3DeadLetter
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3DeadLetter writes records that could not be persisted to S3 as JSON lines.
// Each Put creates one object under prefix/<scanID>/.
type S3DeadLetter struct {
	client ObjectPutter
	bucket string
	prefix string
	scanID string
	now    func() time.Time
}

// NewS3DeadLetter creates a dead letter writer for bucket
func NewS3DeadLetter(client ObjectPutter, bucket, prefix, scanID string) *S3DeadLetter {
	if prefix == "" {
		prefix = DefaultDeadLetterPrefix
	}
	if scanID == "" {
		scanID = "unscoped"
	}
	return &S3DeadLetter{
		client: client,
		bucket: bucket,
		prefix: prefix,
		scanID: scanID,
		now:    time.Now,
	}
}

// NewS3DeadLetterFromConfig creates the S3 client from cfg
func NewS3DeadLetterFromConfig(cfg aws.Config, bucket, prefix, scanID string) *S3DeadLetter {
	return NewS3DeadLetter(s3.NewFromConfig(cfg), bucket, prefix, scanID)
}

// Put implements DeadLetter
func (d *S3DeadLetter) Put(ctx context.Context, recs []models.InventoryRecord) error {
	if len(recs) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode %s: %w", rec.ARN, err)
		}
	}

	key := d.objectKey()
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to write dead letter s3://%s/%s: %w", d.bucket, key, err)
	}
	return nil
}

func (d *S3DeadLetter) objectKey() string {
	return path.Join(d.prefix, d.scanID, fmt.Sprintf("%d.jsonl", d.now().UnixNano()))
}
