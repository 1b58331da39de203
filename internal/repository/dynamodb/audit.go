package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awstypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"
	"github.com/flexprice/planshift/internal/domain/audit"
	ddb "github.com/flexprice/planshift/internal/dynamodb"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/logger"
)

const defaultListLimit = 50

// auditItem is the table layout: partition by subscription, sort by time then id
type auditItem struct {
	PK string `dynamodbav:"pk"`
	SK string `dynamodbav:"sk"`
	audit.Record
}

type auditRepository struct {
	api       ddb.API
	tableName string
	logger    *logger.Logger
}

func NewAuditRepository(api ddb.API, tableName string, logger *logger.Logger) audit.Repository {
	return &auditRepository{api: api, tableName: tableName, logger: logger}
}

func sortKey(r *audit.Record) string {
	return r.OccurredAt.UTC().Format(time.RFC3339Nano) + "#" + r.ID
}

// Append writes the record once; an existing key is never overwritten
func (r *auditRepository) Append(ctx context.Context, record *audit.Record) error {
	item, err := attributevalue.MarshalMap(auditItem{
		PK:     record.SubscriptionRef,
		SK:     sortKey(record),
		Record: *record,
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Could not encode billing history").
			Mark(ierr.ErrSystem)
	}

	r.logger.Debugw("appending audit record to dynamodb",
		"audit_id", record.ID,
		"subscription_ref", record.SubscriptionRef,
		"event_type", record.EventType,
	)

	_, err = r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk) AND attribute_not_exists(sk)"),
	})
	if err != nil {
		var conflict *awstypes.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return ierr.WithError(err).
				WithHint("Billing history entry already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Could not record billing history").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *auditRepository) ListBySubscription(ctx context.Context, subscriptionRef string, limit int) ([]*audit.Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	out, err := r.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]awstypes.AttributeValue{
			":pk": &awstypes.AttributeValueMemberS{Value: subscriptionRef},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Could not load billing history").
			Mark(ierr.ErrDatabase)
	}

	var items []auditItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Could not decode billing history").
			Mark(ierr.ErrSystem)
	}

	records := make([]*audit.Record, 0, len(items))
	for i := range items {
		rec := items[i].Record
		records = append(records, &rec)
	}
	return records, nil
}
