package dedup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"notification-engine/internal/engine/fingerprint"
	"notification-engine/internal/models"
)

// DynamoDBAPI is the subset of *dynamodb.Client the store needs.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type dynamoItem struct {
	PK            string `dynamodbav:"pk"`
	Token         string `dynamodbav:"token"`
	FirstSeenAtMs int64  `dynamodbav:"first_seen_at_ms"`
	ExpiresAtMs   int64  `dynamodbav:"expires_at_ms"`
	// ExpiresAt is the table's TTL attribute (epoch seconds). DynamoDB deletes lazily, so
	// admission compares expires_at_ms instead of trusting the item to be gone.
	ExpiresAt int64 `dynamodbav:"expires_at"`
}

func (it dynamoItem) record() models.DedupRecord {
	return models.DedupRecord{
		Fingerprint: it.PK,
		Token:       it.Token,
		FirstSeenAt: time.UnixMilli(it.FirstSeenAtMs).UTC(),
		ExpiresAt:   time.UnixMilli(it.ExpiresAtMs).UTC(),
	}
}

// DynamoDBStore admits with a conditional PutItem that succeeds only when no live item exists.
type DynamoDBStore struct {
	api   DynamoDBAPI
	table string
	opts  options
}

var _ Store = (*DynamoDBStore)(nil)

func NewDynamoDBStore(api DynamoDBAPI, table string, opts ...Option) *DynamoDBStore {
	return &DynamoDBStore{api: api, table: table, opts: buildOptions(opts)}
}

func (s *DynamoDBStore) TryAdmit(ctx context.Context, fp fingerprint.Fingerprint, ttl time.Duration) (Decision, error) {
	if ttl <= 0 {
		return Decision{}, fmt.Errorf("dedup: ttl must be positive")
	}

	rec := newRecord(s.opts, fp, ttl)
	item, err := attributevalue.MarshalMap(dynamoItem{
		PK:            rec.Fingerprint,
		Token:         rec.Token,
		FirstSeenAtMs: rec.FirstSeenAt.UnixMilli(),
		ExpiresAtMs:   rec.ExpiresAt.UnixMilli(),
		ExpiresAt:     rec.ExpiresAt.Unix(),
	})
	if err != nil {
		return Decision{}, fmt.Errorf("dynamodb dedup marshal: %w", err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk) OR expires_at_ms < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.FirstSeenAt.UnixMilli(), 10)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})

	var ccf *types.ConditionalCheckFailedException
	switch {
	case err == nil:
		return Decision{Status: Admitted, Record: rec}, nil
	case errors.As(err, &ccf):
		existing := models.DedupRecord{Fingerprint: fp.String()}
		var old dynamoItem
		if len(ccf.Item) > 0 && attributevalue.UnmarshalMap(ccf.Item, &old) == nil {
			existing = old.record()
		}
		return Decision{Status: AlreadySeen, Record: existing}, nil
	default:
		return Decision{Record: rec}, fmt.Errorf("dynamodb dedup admit: %w", err)
	}
}

func (s *DynamoDBStore) Release(ctx context.Context, rec models.DedupRecord) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: rec.Fingerprint},
		},
		ConditionExpression:      aws.String("#tok = :tok"),
		ExpressionAttributeNames: map[string]string{"#tok": "token"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tok": &types.AttributeValueMemberS{Value: rec.Token},
		},
	})

	var ccf *types.ConditionalCheckFailedException
	if err != nil && !errors.As(err, &ccf) {
		return fmt.Errorf("dynamodb dedup release: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) Lookup(ctx context.Context, fp fingerprint.Fingerprint) (models.DedupRecord, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: fp.String()},
		},
	})
	if err != nil {
		return models.DedupRecord{}, false, fmt.Errorf("dynamodb dedup lookup: %w", err)
	}
	if len(out.Item) == 0 {
		return models.DedupRecord{}, false, nil
	}

	var it dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return models.DedupRecord{}, false, fmt.Errorf("dynamodb dedup unmarshal: %w", err)
	}

	rec := it.record()
	if !rec.Live(s.opts.clock.Now()) {
		return models.DedupRecord{}, false, nil
	}
	return rec, true, nil
}
