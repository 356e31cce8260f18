package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jlgore/tagsweep/pkg/models"
)

func TestBuildGlobalRole(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := NewBuilder(86400*time.Second, WithClock(func() time.Time { return now }), WithScanID("run-1"))

	rec := b.Build(models.Descriptor{ARN: "arn:aws:iam::123:role/X", Service: "iam"})

	assert.Equal(t, "arn:aws:iam::123:role/X", rec.ARN)
	assert.Equal(t, "iam", rec.Service)
	assert.Equal(t, now.Unix(), rec.LastSeen)
	assert.Equal(t, rec.LastSeen+86400, rec.ExpireAt)
	assert.Equal(t, "run-1", rec.ScanID)
	assert.Empty(t, rec.AccountID)
	assert.Empty(t, rec.ResourceType)
}

func TestBuildCopiesDescriptor(t *testing.T) {
	d := models.Descriptor{
		ARN:          "arn:aws:ec2:us-east-1:123:instance/i-0abc",
		AccountID:    "123",
		Region:       "us-east-1",
		Service:      "ec2",
		ResourceType: "ec2:instance",
	}

	rec := BuildRecord(d, time.Unix(10, 0), time.Minute, "")

	assert.Equal(t, models.InventoryRecord{
		ARN:          d.ARN,
		AccountID:    "123",
		Region:       "us-east-1",
		Service:      "ec2",
		ResourceType: "ec2:instance",
		LastSeen:     10,
		ExpireAt:     70,
	}, rec)
}

func TestBuildDerivesService(t *testing.T) {
	tests := []struct {
		name    string
		arn     string
		service string
	}{
		{"from arn", "arn:aws:s3:::my-bucket", "s3"},
		{"no colon", "my-bucket", UnknownService},
		{"two segments", "arn:aws", UnknownService},
		{"empty service segment", "arn:aws::us-east-1", UnknownService},
		{"empty identifier", "", UnknownService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := BuildRecord(models.Descriptor{ARN: tt.arn}, time.Unix(0, 0), time.Hour, "")
			assert.Equal(t, tt.service, rec.Service)
		})
	}
}

func TestBuildExpiryAlwaysAfterLastSeen(t *testing.T) {
	rec := BuildRecord(models.Descriptor{ARN: "arn:aws:sns:us-east-1:1:t"}, time.Unix(100, 0), 0, "")
	assert.Greater(t, rec.ExpireAt, rec.LastSeen)
}

func TestBuildUsesCurrentClock(t *testing.T) {
	clock := time.Unix(1000, 0)
	b := NewBuilder(time.Hour, WithClock(func() time.Time { return clock }))

	first := b.Build(models.Descriptor{ARN: "arn:aws:sqs:us-east-1:1:q"})
	clock = clock.Add(time.Minute)
	second := b.Build(models.Descriptor{ARN: "arn:aws:sqs:us-east-1:1:q"})

	assert.Equal(t, first.LastSeen+60, second.LastSeen)
	assert.Equal(t, first.ExpireAt+60, second.ExpireAt)
}

func TestARNSegments(t *testing.T) {
	arn := "arn:aws:lambda:eu-west-1:123456789012:function:my-fn"
	assert.Equal(t, "lambda", ServiceFromARN(arn))
	assert.Equal(t, "eu-west-1", RegionFromARN(arn))
	assert.Equal(t, "123456789012", AccountFromARN(arn))

	assert.Equal(t, "", RegionFromARN("arn:aws:iam::123:role/X"))
	assert.Equal(t, "123", AccountFromARN("arn:aws:iam::123:role/X"))
	assert.Equal(t, "", AccountFromARN("arn:aws:s3:::bucket"))
	assert.Equal(t, "", RegionFromARN("bucket"))
}
