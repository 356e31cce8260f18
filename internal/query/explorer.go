package query

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/resourceexplorer2"
	"github.com/aws/aws-sdk-go-v2/service/resourceexplorer2/types"

	"github.com/jlgore/tagsweep/pkg/models"
)

// SearchAPI is the part of the Resource Explorer client used for discovery
type SearchAPI interface {
	Search(ctx context.Context, params *resourceexplorer2.SearchInput, optFns ...func(*resourceexplorer2.Options)) (*resourceexplorer2.SearchOutput, error)
}

// ExplorerSource discovers resources through an AWS Resource Explorer index.
// A single client serves every region; the region is part of the query string.
type ExplorerSource struct {
	client SearchAPI
	opts   options
}

// NewExplorerSource creates a Resource Explorer backed source
func NewExplorerSource(client SearchAPI, opts ...Option) *ExplorerSource {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &ExplorerSource{
		client: client,
		opts:   o,
	}
}

// NewExplorerSourceFromConfig creates the client for the index region
func NewExplorerSourceFromConfig(cfg aws.Config, indexRegion string, opts ...Option) *ExplorerSource {
	client := resourceexplorer2.NewFromConfig(cfg, func(o *resourceexplorer2.Options) {
		if indexRegion != "" {
			o.Region = indexRegion
		}
	})
	return NewExplorerSource(client, opts...)
}

// ExplorerQuery returns the search expression for taggable resources in region
// that do not carry tagKey
func ExplorerQuery(tagKey, region string) string {
	return fmt.Sprintf("resourcetype.supports:tags -tag.key:%s region:%s", quoteTerm(tagKey), quoteTerm(region))
}

// Search implements Source
func (s *ExplorerSource) Search(ctx context.Context, tagKey, region string) iter.Seq2[models.Descriptor, error] {
	query := ExplorerQuery(tagKey, region)

	return paginate(ctx, region, s.opts.limiter, func(ctx context.Context, token *string) ([]models.Descriptor, *string, error) {
		input := &resourceexplorer2.SearchInput{
			QueryString: aws.String(query),
			MaxResults:  aws.Int32(int32(s.opts.pageSize)),
			NextToken:   token,
		}
		if s.opts.viewARN != "" {
			input.ViewArn = aws.String(s.opts.viewARN)
		}

		result, err := s.client.Search(ctx, input)
		if err != nil {
			return nil, nil, fmt.Errorf("resource explorer search failed: %w", err)
		}

		return convertExplorerResults(result.Resources, region), result.NextToken, nil
	})
}

func convertExplorerResults(resources []types.Resource, region string) []models.Descriptor {
	descriptors := make([]models.Descriptor, 0, len(resources))

	for _, resource := range resources {
		arn := aws.ToString(resource.Arn)
		if arn == "" {
			continue
		}

		descriptors = append(descriptors, models.Descriptor{
			ARN:          arn,
			AccountID:    aws.ToString(resource.OwningAccountId),
			Region:       region,
			Service:      aws.ToString(resource.Service),
			ResourceType: aws.ToString(resource.ResourceType),
		})
	}

	return descriptors
}

func quoteTerm(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}
