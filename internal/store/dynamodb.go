package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jlgore/tagsweep/pkg/models"
)

// DynamoDBAPI is the part of the DynamoDB client used by DynamoStore
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore writes records to a DynamoDB table. The table is expected to have
// ARN as partition key (optionally AccountId as sort key) and TTL enabled on
// ExpireAt.
type DynamoStore struct {
	client DynamoDBAPI
	table  string
}

// NewDynamoStore creates a store for table
func NewDynamoStore(client DynamoDBAPI, table string) *DynamoStore {
	return &DynamoStore{
		client: client,
		table:  table,
	}
}

// NewDynamoStoreFromConfig creates the DynamoDB client from cfg
func NewDynamoStoreFromConfig(cfg aws.Config, table string) *DynamoStore {
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), table)
}

// Table returns the table name
func (s *DynamoStore) Table() string {
	return s.table
}

// Upsert implements Writer
func (s *DynamoStore) Upsert(ctx context.Context, rec models.InventoryRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("error marshalling record %s: %w", rec.ARN, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("error putting %s into %s: %w", rec.ARN, s.table, err)
	}
	return nil
}

// BatchUpsert implements Writer
func (s *DynamoStore) BatchUpsert(ctx context.Context, recs []models.InventoryRecord) ([]models.InventoryRecord, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	if err := checkBatch(recs); err != nil {
		return nil, err
	}

	writeReqs := make([]types.WriteRequest, len(recs))
	for i, rec := range recs {
		item, err := attributevalue.MarshalMap(rec)
		if err != nil {
			return nil, fmt.Errorf("error marshalling record %s: %w", rec.ARN, err)
		}
		writeReqs[i] = types.WriteRequest{PutRequest: &types.PutRequest{Item: item}}
	}

	resp, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{s.table: writeReqs},
	})
	if err != nil {
		return nil, fmt.Errorf("error batch writing %d records to %s: %w", len(recs), s.table, err)
	}

	return s.unprocessed(resp.UnprocessedItems[s.table], recs), nil
}

// unprocessed maps the returned write requests back to records. Items that
// cannot be decoded are taken from the submitted batch by ARN.
func (s *DynamoStore) unprocessed(reqs []types.WriteRequest, submitted []models.InventoryRecord) []models.InventoryRecord {
	if len(reqs) == 0 {
		return nil
	}

	byARN := make(map[string]models.InventoryRecord, len(submitted))
	for _, rec := range submitted {
		byARN[rec.ARN] = rec
	}

	out := make([]models.InventoryRecord, 0, len(reqs))
	for _, req := range reqs {
		if req.PutRequest == nil {
			continue
		}
		var rec models.InventoryRecord
		if err := attributevalue.UnmarshalMap(req.PutRequest.Item, &rec); err != nil || rec.ARN == "" {
			if arn, ok := req.PutRequest.Item["ARN"].(*types.AttributeValueMemberS); ok {
				rec = byARN[arn.Value]
			}
		}
		out = append(out, rec)
	}
	return out
}
