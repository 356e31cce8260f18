// Package inventory turns discovered resources into inventory records.
package inventory

import (
	"strings"
	"time"

	"github.com/jlgore/tagsweep/pkg/models"
)

// UnknownService is used when neither the descriptor nor its ARN names a service
const UnknownService = "unknown"

// Builder maps descriptors to records. It holds no mutable state and is safe
// for concurrent use.
type Builder struct {
	ttl    time.Duration
	scanID string
	now    func() time.Time
}

// Option configures a Builder
type Option func(*Builder)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// WithScanID stamps every record with the run identifier
func WithScanID(id string) Option {
	return func(b *Builder) {
		b.scanID = id
	}
}

// NewBuilder creates a builder for the process-wide TTL
func NewBuilder(ttl time.Duration, opts ...Option) *Builder {
	b := &Builder{
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build creates the record for a descriptor seen now. It never fails: missing
// optional fields stay empty.
func (b *Builder) Build(d models.Descriptor) models.InventoryRecord {
	return BuildRecord(d, b.now(), b.ttl, b.scanID)
}

// BuildRecord is the pure form of Builder.Build
func BuildRecord(d models.Descriptor, now time.Time, ttl time.Duration, scanID string) models.InventoryRecord {
	lastSeen := now.Unix()

	// ExpireAt must stay strictly after LastSeen even for sub-second TTLs
	ttlSeconds := int64(ttl / time.Second)
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	service := d.Service
	if service == "" {
		service = ServiceFromARN(d.ARN)
	}

	return models.InventoryRecord{
		ARN:          d.ARN,
		AccountID:    d.AccountID,
		Region:       d.Region,
		Service:      service,
		ResourceType: d.ResourceType,
		LastSeen:     lastSeen,
		ExpireAt:     lastSeen + ttlSeconds,
		ScanID:       scanID,
	}
}

// ServiceFromARN returns the third colon-delimited segment of an identifier,
// e.g. "iam" for arn:aws:iam::123:role/X.
func ServiceFromARN(arn string) string {
	parts := strings.SplitN(arn, ":", 4)
	if len(parts) < 3 || parts[2] == "" {
		return UnknownService
	}
	return parts[2]
}

// RegionFromARN returns the fourth segment, empty for global resources
func RegionFromARN(arn string) string {
	parts := strings.SplitN(arn, ":", 5)
	if len(parts) < 4 {
		return ""
	}
	return parts[3]
}

// AccountFromARN returns the fifth segment, empty for resources such as S3 buckets
func AccountFromARN(arn string) string {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) < 5 {
		return ""
	}
	return parts[4]
}
