package query

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jlgore/tagsweep/pkg/models"
)

type mockTaggingAPI struct {
	mock.Mock
}

func (m *mockTaggingAPI) GetResources(ctx context.Context, params *resourcegroupstaggingapi.GetResourcesInput, optFns ...func(*resourcegroupstaggingapi.Options)) (*resourcegroupstaggingapi.GetResourcesOutput, error) {
	args := m.Called(aws.ToString(params.PaginationToken))
	out, _ := args.Get(0).(*resourcegroupstaggingapi.GetResourcesOutput)
	return out, args.Error(1)
}

func mapping(arn string, tagKeys ...string) types.ResourceTagMapping {
	m := types.ResourceTagMapping{ResourceARN: aws.String(arn)}
	for _, k := range tagKeys {
		m.Tags = append(m.Tags, types.Tag{Key: aws.String(k), Value: aws.String("v")})
	}
	return m
}

func TestTaggingSearchFiltersTaggedResources(t *testing.T) {
	api := &mockTaggingAPI{}
	api.On("GetResources", "").Return(&resourcegroupstaggingapi.GetResourcesOutput{
		ResourceTagMappingList: []types.ResourceTagMapping{
			mapping("arn:aws:ec2:us-east-1:111:instance/i-1", "Name"),
			mapping("arn:aws:ec2:us-east-1:111:instance/i-2", "Environment"),
			mapping("arn:aws:s3:::logs-bucket"),
		},
		PaginationToken: aws.String("next"),
	}, nil).Once()
	api.On("GetResources", "next").Return(&resourcegroupstaggingapi.GetResourcesOutput{
		ResourceTagMappingList: []types.ResourceTagMapping{
			mapping("arn:aws:lambda:us-east-1:111:function:f"),
		},
		PaginationToken: aws.String(""),
	}, nil).Once()

	var regions []string
	src := NewTaggingSource(func(region string) TaggingAPI {
		regions = append(regions, region)
		return api
	}, "999", WithPageSize(50))

	got, err := collect(t, src.Search(context.Background(), "Environment", "us-east-1"))
	require.NoError(t, err)

	assert.Equal(t, []models.Descriptor{
		{ARN: "arn:aws:ec2:us-east-1:111:instance/i-1", AccountID: "111", Region: "us-east-1", Service: "ec2"},
		{ARN: "arn:aws:s3:::logs-bucket", AccountID: "999", Region: "us-east-1", Service: "s3"},
		{ARN: "arn:aws:lambda:us-east-1:111:function:f", AccountID: "111", Region: "us-east-1", Service: "lambda"},
	}, got)
	assert.Equal(t, []string{"us-east-1"}, regions)
	api.AssertExpectations(t)
}

func TestTaggingSearchGlobalScope(t *testing.T) {
	api := &mockTaggingAPI{}
	api.On("GetResources", "").Return(&resourcegroupstaggingapi.GetResourcesOutput{
		ResourceTagMappingList: []types.ResourceTagMapping{
			mapping("arn:aws:iam::111:role/X"),
			mapping("arn:aws:ec2:us-east-1:111:vpc/vpc-1"),
			mapping("arn:aws:s3:::bucket"),
		},
	}, nil)

	var endpoint string
	src := NewTaggingSource(func(region string) TaggingAPI {
		endpoint = region
		return api
	}, "111")

	got, err := collect(t, src.Search(context.Background(), "Foobar", models.GlobalRegion))
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", endpoint)
	require.Len(t, got, 1)
	assert.Equal(t, models.Descriptor{ARN: "arn:aws:iam::111:role/X", AccountID: "111", Region: "Global", Service: "iam"}, got[0])
}

func TestTaggingSearchDropsGlobalFromRegions(t *testing.T) {
	api := &mockTaggingAPI{}
	api.On("GetResources", "").Return(&resourcegroupstaggingapi.GetResourcesOutput{
		ResourceTagMappingList: []types.ResourceTagMapping{
			mapping("arn:aws:iam::111:role/X"),
			mapping("arn:aws:sqs:us-east-1:111:queue"),
		},
	}, nil)

	src := NewTaggingSource(func(string) TaggingAPI { return api }, "111")
	got, err := collect(t, src.Search(context.Background(), "Foobar", "us-east-1"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "arn:aws:sqs:us-east-1:111:queue", got[0].ARN)
}

func TestTaggingSearchErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		skipped bool
	}{
		{"access denied", &smithy.GenericAPIError{Code: "AccessDeniedException"}, true},
		{"invalid parameter", &smithy.GenericAPIError{Code: "InvalidParameterException"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockTaggingAPI{}
			api.On("GetResources", "").Return(nil, tt.err)

			src := NewTaggingSource(func(string) TaggingAPI { return api }, "111")
			got, err := collect(t, src.Search(context.Background(), "Foobar", "ap-south-1"))

			assert.Empty(t, got)
			if tt.skipped {
				assert.ErrorIs(t, err, ErrRegionSkipped)
			} else {
				assert.ErrorIs(t, err, ErrQueryFailed)
			}
		})
	}
}
