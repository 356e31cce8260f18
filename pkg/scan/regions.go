package scan

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/jlgore/tagsweep/pkg/models"
)

// AllRegions in a region list expands to every enabled region
const AllRegions = "all"

// RegionsAPI is the part of the EC2 client used to list enabled regions
type RegionsAPI interface {
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

// fallbackRegions is used when DescribeRegions is not available
var fallbackRegions = []string{
	"us-east-1", "us-east-2", "us-west-1", "us-west-2",
	"eu-west-1", "eu-west-2", "eu-west-3", "eu-central-1",
	"ap-southeast-1", "ap-southeast-2", "ap-northeast-1", "ap-northeast-2",
	"sa-east-1", "ca-central-1",
}

// ExpandRegions replaces an "all" entry with Global followed by the account's
// enabled regions and removes duplicates, keeping the first occurrence. client
// may be nil when the list contains no "all" entry.
func ExpandRegions(ctx context.Context, client RegionsAPI, regions []string, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]bool, len(regions))
	out := make([]string, 0, len(regions))
	add := func(r string) {
		if r == "" || seen[r] {
			return
		}
		seen[r] = true
		out = append(out, r)
	}

	for _, r := range regions {
		r = strings.TrimSpace(r)
		if !strings.EqualFold(r, AllRegions) {
			add(r)
			continue
		}

		add(models.GlobalRegion)
		for _, enabled := range enabledRegions(ctx, client, logger) {
			add(enabled)
		}
	}
	return out
}

func enabledRegions(ctx context.Context, client RegionsAPI, logger *slog.Logger) []string {
	if client == nil {
		logger.WarnContext(ctx, "no EC2 client to list regions, using common regions")
		return fallbackRegions
	}

	resp, err := client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		AllRegions: aws.Bool(false),
		Filters: []types.Filter{
			{
				Name:   aws.String("opt-in-status"),
				Values: []string{"opt-in-not-required", "opted-in"},
			},
		},
	})
	if err != nil {
		logger.WarnContext(ctx, "failed to list enabled regions, using common regions", "error", err)
		return fallbackRegions
	}

	regions := make([]string, 0, len(resp.Regions))
	for _, region := range resp.Regions {
		if region.RegionName != nil {
			regions = append(regions, *region.RegionName)
		}
	}
	sort.Strings(regions)
	return regions
}
