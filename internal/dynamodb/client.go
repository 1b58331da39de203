package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/flexprice/planshift/internal/config"
	ierr "github.com/flexprice/planshift/internal/errors"
)

// API is the part of the DynamoDB client used by the audit store
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type Client struct {
	db *dynamodb.Client
}

func NewClient(ctx context.Context, cfg *config.Configuration) (*Client, error) {
	awsCfg, err := cfg.DynamoDB.LoadAWSConfig(ctx)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unable to load AWS configuration").
			Mark(ierr.ErrConfiguration)
	}

	return &Client{
		db: dynamodb.NewFromConfig(awsCfg),
	}, nil
}

func (c *Client) DB() API {
	return c.db
}
