package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

var (
	// ErrRegionSkipped marks a region the caller is not allowed to query.
	// The scan continues with the remaining regions.
	ErrRegionSkipped = errors.New("region skipped")

	// ErrQueryFailed marks any other discovery failure. Only the current
	// region's iteration stops.
	ErrQueryFailed = errors.New("query failed")
)

// AWS error codes that mean the caller lacks permission in a region
var accessDeniedCodes = map[string]bool{
	"AccessDeniedException": true,
	"AccessDenied":          true,
	"UnauthorizedException": true,
	"UnauthorizedOperation": true,
}

var throttlingCodes = map[string]bool{
	"ThrottlingException":      true,
	"Throttling":               true,
	"TooManyRequestsException": true,
	"RequestLimitExceeded":     true,
}

// RegionError is the failure of a discovery query in one region
type RegionError struct {
	Region  string
	Code    string
	Skipped bool
	Err     error
}

func (e *RegionError) Error() string {
	if e.Skipped {
		return fmt.Sprintf("access denied in %s (%s): %v", e.Region, e.Code, e.Err)
	}
	return fmt.Sprintf("query failed in %s (%s): %v", e.Region, e.Code, e.Err)
}

func (e *RegionError) Unwrap() error {
	return e.Err
}

// Is matches ErrRegionSkipped or ErrQueryFailed depending on the classification
func (e *RegionError) Is(target error) bool {
	switch target {
	case ErrRegionSkipped:
		return e.Skipped
	case ErrQueryFailed:
		return !e.Skipped
	}
	return false
}

// Throttled reports whether the service rejected the query for rate reasons
func (e *RegionError) Throttled() bool {
	return throttlingCodes[e.Code]
}

// Classify wraps a discovery error for region. Access denial becomes a skipped
// region, anything else a failed query. nil stays nil.
func Classify(region string, err error) error {
	if err == nil {
		return nil
	}

	var regionErr *RegionError
	if errors.As(err, &regionErr) {
		return regionErr
	}

	classified := &RegionError{
		Region: region,
		Code:   "UnknownError",
		Err:    err,
	}

	var apiErr smithy.APIError
	switch {
	case errors.As(err, &apiErr):
		classified.Code = apiErr.ErrorCode()
		classified.Skipped = accessDeniedCodes[classified.Code]
	case errors.Is(err, context.Canceled):
		classified.Code = "Canceled"
	case errors.Is(err, context.DeadlineExceeded):
		classified.Code = "Timeout"
	case strings.Contains(strings.ToLower(err.Error()), "access denied"):
		classified.Code = "AccessDenied"
		classified.Skipped = true
	}

	return classified
}
