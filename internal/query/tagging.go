package query

import (
	"context"
	"fmt"
	"iter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"

	"github.com/jlgore/tagsweep/internal/inventory"
	"github.com/jlgore/tagsweep/pkg/models"
)

// globalEndpointRegion serves the tagging API calls for the Global scope
const globalEndpointRegion = "us-east-1"

// Services whose resources have no region. S3 ARNs also omit the region but
// buckets are listed by the region they live in, so s3 is not part of this set.
var globalServices = map[string]bool{
	"iam":               true,
	"route53":           true,
	"cloudfront":        true,
	"organizations":     true,
	"waf":               true,
	"globalaccelerator": true,
	"shield":            true,
	"budgets":           true,
}

// isGlobalARN reports whether arn belongs to the Global scope
func isGlobalARN(arn string) bool {
	return inventory.RegionFromARN(arn) == "" && globalServices[inventory.ServiceFromARN(arn)]
}

// TaggingAPI is the part of the Resource Groups Tagging API client used for discovery
type TaggingAPI interface {
	GetResources(ctx context.Context, params *resourcegroupstaggingapi.GetResourcesInput, optFns ...func(*resourcegroupstaggingapi.Options)) (*resourcegroupstaggingapi.GetResourcesOutput, error)
}

// TaggingClientFactory returns the client for a real AWS region
type TaggingClientFactory func(region string) TaggingAPI

// TaggingSource discovers resources with the Resource Groups Tagging API. The
// API cannot filter on tag absence, so every taggable resource of the region is
// listed and the tag check happens here.
type TaggingSource struct {
	clients   TaggingClientFactory
	accountID string
	opts      options
}

// NewTaggingSource creates a tagging API backed source. accountID is recorded
// for resources whose ARN carries no account (S3 buckets).
func NewTaggingSource(clients TaggingClientFactory, accountID string, opts ...Option) *TaggingSource {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &TaggingSource{
		clients:   clients,
		accountID: accountID,
		opts:      o,
	}
}

// NewTaggingSourceFromConfig creates one client per region from cfg
func NewTaggingSourceFromConfig(cfg aws.Config, accountID string, opts ...Option) *TaggingSource {
	factory := func(region string) TaggingAPI {
		return resourcegroupstaggingapi.NewFromConfig(cfg, func(o *resourcegroupstaggingapi.Options) {
			o.Region = region
		})
	}
	return NewTaggingSource(factory, accountID, opts...)
}

// Search implements Source. The Global scope is served by the us-east-1
// endpoint and keeps only global services; named regions drop them so a
// resource is never counted twice.
func (s *TaggingSource) Search(ctx context.Context, tagKey, region string) iter.Seq2[models.Descriptor, error] {
	global := region == models.GlobalRegion
	endpoint := region
	if global {
		endpoint = globalEndpointRegion
	}
	client := s.clients(endpoint)

	return paginate(ctx, region, s.opts.limiter, func(ctx context.Context, token *string) ([]models.Descriptor, *string, error) {
		result, err := client.GetResources(ctx, &resourcegroupstaggingapi.GetResourcesInput{
			PaginationToken:  token,
			ResourcesPerPage: aws.Int32(int32(s.opts.pageSize)),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("tagging api get resources failed: %w", err)
		}

		var descriptors []models.Descriptor
		for _, mapping := range result.ResourceTagMappingList {
			arn := aws.ToString(mapping.ResourceARN)
			if arn == "" || hasTag(mapping.Tags, tagKey) {
				continue
			}
			if isGlobalARN(arn) != global {
				continue
			}
			descriptors = append(descriptors, s.describe(arn, region))
		}

		return descriptors, result.PaginationToken, nil
	})
}

func (s *TaggingSource) describe(arn, region string) models.Descriptor {
	account := inventory.AccountFromARN(arn)
	if account == "" {
		account = s.accountID
	}
	return models.Descriptor{
		ARN:       arn,
		AccountID: account,
		Region:    region,
		Service:   inventory.ServiceFromARN(arn),
	}
}

func hasTag(tags []types.Tag, key string) bool {
	for _, t := range tags {
		if aws.ToString(t.Key) == key {
			return true
		}
	}
	return false
}
