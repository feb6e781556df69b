package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DDBClient is the subset of the DynamoDB API the session store needs.
type DDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps one item per cart token:
//
//	PK = CART#<cartToken>
//
// CustomerId and OrderId are written only when known so the two lookup
// indexes stay sparse.
type DynamoStore struct {
	ddb           DDBClient
	table         string
	customerIndex string
	orderIndex    string
	now           func() time.Time
}

type DynamoOption func(*DynamoStore)

func WithCustomerIndex(name string) DynamoOption {
	return func(s *DynamoStore) { s.customerIndex = name }
}

func WithOrderIndex(name string) DynamoOption {
	return func(s *DynamoStore) { s.orderIndex = name }
}

func WithClock(now func() time.Time) DynamoOption {
	return func(s *DynamoStore) { s.now = now }
}

func NewDynamoStore(ddb DDBClient, table string, opts ...DynamoOption) *DynamoStore {
	s := &DynamoStore{
		ddb:           ddb,
		table:         table,
		customerIndex: "GSI_CustomerId",
		orderIndex:    "GSI_OrderId",
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type sessionItem struct {
	PK string `dynamodbav:"PK"`
	Record
}

func cartPK(cartToken string) string {
	return fmt.Sprintf("CART#%s", cartToken)
}

func (s *DynamoStore) FindByCartToken(ctx context.Context, cartToken string) (*Record, error) {
	out, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: cartPK(cartToken)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, persistErr("find by cart token", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return decodeRecord("find by cart token", out.Item)
}

func (s *DynamoStore) FindByCustomerID(ctx context.Context, customerID string) (*Record, error) {
	return s.queryFirst(ctx, "find by customer id", s.customerIndex, "CustomerId", customerID)
}

func (s *DynamoStore) FindByOrderID(ctx context.Context, orderID string) (*Record, error) {
	return s.queryFirst(ctx, "find by order id", s.orderIndex, "OrderId", orderID)
}

func (s *DynamoStore) queryFirst(ctx context.Context, op, index, attr, value string) (*Record, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	out, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String("#k = :v"),
		ExpressionAttributeNames: map[string]string{
			"#k": attr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, persistErr(op, err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	return decodeRecord(op, out.Items[0])
}

func (s *DynamoStore) Create(ctx context.Context, rec Record) (*Record, error) {
	if rec.CartToken == "" {
		return nil, persistErr("create", ErrMissingCartToken)
	}

	stamp := s.now().Format(time.RFC3339)
	rec.CreatedAt = stamp
	rec.UpdatedAt = stamp

	item, err := attributevalue.MarshalMap(sessionItem{PK: cartPK(rec.CartToken), Record: rec})
	if err != nil {
		return nil, persistErr("create", fmt.Errorf("marshal: %w", err))
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err == nil {
		return &rec, nil
	}

	var cfe *types.ConditionalCheckFailedException
	if !errors.As(err, &cfe) {
		return nil, persistErr("create", err)
	}

	// Lost the race for this cart token; hand back the winner.
	existing, err := s.FindByCartToken(ctx, rec.CartToken)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, persistErr("create", fmt.Errorf("cart %s vanished after conditional check", rec.CartToken))
	}
	return existing, nil
}

func (s *DynamoStore) Update(ctx context.Context, cartToken string, patch Patch) (*Record, error) {
	sets := []string{"UpdatedAt = :u"}
	values := map[string]types.AttributeValue{
		":u": &types.AttributeValueMemberS{Value: s.now().Format(time.RFC3339)},
	}
	if patch.CustomerID != nil {
		sets = append(sets, "CustomerId = :c")
		values[":c"] = &types.AttributeValueMemberS{Value: *patch.CustomerID}
	}
	if patch.OrderID != nil {
		sets = append(sets, "OrderId = :o")
		values[":o"] = &types.AttributeValueMemberS{Value: *patch.OrderID}
	}

	out, err := s.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: cartPK(cartToken)},
		},
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return nil, nil
		}
		return nil, persistErr("update", err)
	}
	return decodeRecord("update", out.Attributes)
}

func decodeRecord(op string, item map[string]types.AttributeValue) (*Record, error) {
	var it sessionItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, persistErr(op, fmt.Errorf("unmarshal: %w", err))
	}
	rec := it.Record
	return &rec, nil
}
