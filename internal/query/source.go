// Package query discovers resources that are missing a required tag.
package query

import (
	"context"
	"iter"

	"golang.org/x/time/rate"

	"github.com/jlgore/tagsweep/pkg/models"
)

// DefaultPageSize bounds the cost of a single discovery request
const DefaultPageSize = 100

// Source produces the tag-absent resources of a region. The sequence is lazy
// and pages are fetched only as the caller consumes it. A failure is yielded
// once as a *RegionError and ends the sequence.
type Source interface {
	Search(ctx context.Context, tagKey, region string) iter.Seq2[models.Descriptor, error]
}

// Option configures a Source
type Option func(*options)

type options struct {
	pageSize int
	viewARN  string
	limiter  *rate.Limiter
}

func defaultOptions() options {
	return options{pageSize: DefaultPageSize}
}

// WithPageSize sets the number of results requested per page
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithViewARN selects a Resource Explorer view instead of the default one
func WithViewARN(arn string) Option {
	return func(o *options) {
		o.viewARN = arn
	}
}

// WithRateLimit caps page requests per second. Zero disables the limit.
func WithRateLimit(pagesPerSecond float64) Option {
	return func(o *options) {
		if pagesPerSecond > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(pagesPerSecond), 1)
		} else {
			o.limiter = nil
		}
	}
}

// fetchFunc returns one page and the token of the next one (nil or empty when done)
type fetchFunc func(ctx context.Context, token *string) ([]models.Descriptor, *string, error)

// paginate turns a page fetcher into one continuous sequence
func paginate(ctx context.Context, region string, limiter *rate.Limiter, fetch fetchFunc) iter.Seq2[models.Descriptor, error] {
	return func(yield func(models.Descriptor, error) bool) {
		var token *string
		for {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					yield(models.Descriptor{}, Classify(region, err))
					return
				}
			}

			items, next, err := fetch(ctx, token)
			if err != nil {
				yield(models.Descriptor{}, Classify(region, err))
				return
			}

			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}

			if next == nil || *next == "" {
				return
			}
			token = next
		}
	}
}
