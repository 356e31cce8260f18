package models

import (
	"time"
)

// GlobalRegion is the logical scope for resources that do not live in a region (IAM, Route 53, ...)
const GlobalRegion = "Global"

// Descriptor is a resource reported by a discovery query as missing the required tag
type Descriptor struct {
	ARN          string `json:"arn"`
	AccountID    string `json:"account_id,omitempty"`
	Region       string `json:"region,omitempty"`
	Service      string `json:"service,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
}

// InventoryRecord is the persisted unit. ARN (plus AccountID when set) is the key,
// so writing the same resource twice overwrites the earlier record.
type InventoryRecord struct {
	ARN          string `dynamodbav:"ARN" json:"arn"`
	AccountID    string `dynamodbav:"AccountId,omitempty" json:"account_id,omitempty"`
	Region       string `dynamodbav:"Region,omitempty" json:"region,omitempty"`
	Service      string `dynamodbav:"Service" json:"service"`
	ResourceType string `dynamodbav:"ResourceType,omitempty" json:"resource_type,omitempty"`
	LastSeen     int64  `dynamodbav:"LastSeen" json:"last_seen"`
	ExpireAt     int64  `dynamodbav:"ExpireAt" json:"expire_at"`
	ScanID       string `dynamodbav:"ScanId,omitempty" json:"scan_id,omitempty"`
}

// Key returns the identity of the record in the store
func (r InventoryRecord) Key() string {
	if r.AccountID == "" {
		return r.ARN
	}
	return r.AccountID + "|" + r.ARN
}

// Expired reports whether the store is allowed to drop the record at now
func (r InventoryRecord) Expired(now time.Time) bool {
	return r.ExpireAt <= now.Unix()
}

// RegionState is the per-region lifecycle of a scan
type RegionState string

const (
	RegionPending   RegionState = "pending"
	RegionScanning  RegionState = "scanning"
	RegionCompleted RegionState = "completed"
	RegionSkipped   RegionState = "skipped"
	RegionFailed    RegionState = "failed"
)

// Terminal reports whether no further transition is possible
func (s RegionState) Terminal() bool {
	switch s {
	case RegionCompleted, RegionSkipped, RegionFailed:
		return true
	default:
		return false
	}
}
