package shopify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PutItemAPI is the DynamoDB call the deduper needs.
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Deduper remembers webhook ids so Shopify redeliveries are processed once.
type Deduper struct {
	ddb   PutItemAPI
	table string
	ttl   time.Duration
	now   func() time.Time
}

func NewDeduper(ddb PutItemAPI, table string) *Deduper {
	return &Deduper{
		ddb:   ddb,
		table: strings.TrimSpace(table),
		ttl:   7 * 24 * time.Hour,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Claim returns (true, nil) if webhookID was already claimed. An empty id
// or an unconfigured table never blocks processing.
func (d *Deduper) Claim(ctx context.Context, webhookID, shopDomain string, topic Topic) (bool, error) {
	webhookID = strings.TrimSpace(webhookID)
	if d == nil || d.table == "" || webhookID == "" {
		return false, nil
	}

	now := d.now()
	exp := now.Add(d.ttl).Unix()

	_, err := d.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: fmt.Sprintf("WH#%s", webhookID)},
			"Shop":      &types.AttributeValueMemberS{Value: shopDomain},
			"Topic":     &types.AttributeValueMemberS{Value: string(topic)},
			"CreatedAt": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			"ExpiresAt": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", exp)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return true, nil
		}
		return false, fmt.Errorf("claim webhook %s: %w", webhookID, err)
	}
	return false, nil
}
