package catalog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
)

// catalogItem is the DynamoDB item of a namespace or table
type catalogItem struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Version   int64     `json:"version"`
	Metadata  string    `json:"metadata,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	kindNamespace = "namespace"
	kindTable     = "table"
)

// DynamoDBCatalog implements Catalog using AWS DynamoDB
type DynamoDBCatalog struct {
	name      string
	client    dynamodbiface.DynamoDBAPI
	tableName string
	region    string
	now       func() time.Time
}

// NewDynamoDBCatalog creates a new DynamoDB catalog and its table if needed
func NewDynamoDBCatalog(ctx context.Context, cfg config.CatalogConfig) (*DynamoDBCatalog, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create AWS session")
	}

	c := NewDynamoDBCatalogWithClient(dynamodb.New(sess), cfg)
	if err := c.ensureTable(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to ensure table exists")
	}
	return c, nil
}

// NewDynamoDBCatalogWithClient creates a catalog on an existing client
func NewDynamoDBCatalogWithClient(client dynamodbiface.DynamoDBAPI, cfg config.CatalogConfig) *DynamoDBCatalog {
	return &DynamoDBCatalog{
		name:      cfg.Name,
		client:    client,
		tableName: cfg.TableName,
		region:    cfg.Region,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ensureTable creates the DynamoDB table if it doesn't exist
func (d *DynamoDBCatalog) ensureTable(ctx context.Context) error {
	_, err := d.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	if err == nil {
		return nil
	}
	var aerr awserr.Error
	if !errors.As(err, &aerr) || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return err
	}

	_, err = d.client.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(d.tableName),
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("id"),
				KeyType:       aws.String("HASH"),
			},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("id"),
				AttributeType: aws.String("S"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create table")
	}

	return d.client.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
}

func (d *DynamoDBCatalog) Name() string { return d.name }

func (d *DynamoDBCatalog) URI() string {
	return fmt.Sprintf("dynamodb://%s/%s", d.region, d.tableName)
}

func (d *DynamoDBCatalog) CreateNamespace(ctx context.Context, namespace []string) error {
	err := d.putNew(ctx, catalogItem{
		ID:        namespaceKey(namespace),
		Kind:      kindNamespace,
		Version:   1,
		UpdatedAt: d.now(),
	})
	if isConditionFailed(err) {
		return errors.WithStack(ErrNamespaceExists)
	}
	return err
}

func (d *DynamoDBCatalog) LoadTable(ctx context.Context, id Identifier) (*Table, error) {
	result, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(tableKey(id))},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get table %s", id)
	}
	if result.Item == nil {
		return nil, errors.Wrap(ErrNoSuchTable, id.String())
	}

	var item catalogItem
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal table item")
	}
	return decodeTable(item.Metadata)
}

func (d *DynamoDBCatalog) CreateTable(ctx context.Context, id Identifier, schema Schema, spec PartitionSpec, location string) (*Table, error) {
	t := newTable(id, schema, spec, location, d.now())
	meta, err := encodeTable(t)
	if err != nil {
		return nil, err
	}
	err = d.putNew(ctx, catalogItem{
		ID:        tableKey(id),
		Kind:      kindTable,
		Version:   t.Version,
		Metadata:  meta,
		UpdatedAt: t.LastUpdated,
	})
	if isConditionFailed(err) {
		return nil, errors.Wrap(ErrTableExists, id.String())
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// AppendFiles commits files as a new snapshot. The write is conditional on
// the version that was read.
func (d *DynamoDBCatalog) AppendFiles(ctx context.Context, id Identifier, files []DataFile) (*Table, error) {
	t, err := d.LoadTable(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := t.Version
	t.appendSnapshot(files, d.now())

	meta, err := encodeTable(t)
	if err != nil {
		return nil, err
	}
	item, err := dynamodbattribute.MarshalMap(catalogItem{
		ID:        tableKey(id),
		Kind:      kindTable,
		Version:   t.Version,
		Metadata:  meta,
		UpdatedAt: t.LastUpdated,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal table item")
	}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("version = :v"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":v": {N: aws.String(strconv.FormatInt(prev, 10))},
		},
	})
	if isConditionFailed(err) {
		return nil, errors.Wrap(ErrCommitConflict, id.String())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to commit table %s", id)
	}
	return t, nil
}

// Close closes the DynamoDB connection
func (d *DynamoDBCatalog) Close() error {
	// DynamoDB client doesn't need explicit closing
	return nil
}

// putNew writes item unless an item with the same id exists.
func (d *DynamoDBCatalog) putNew(ctx context.Context, it catalogItem) error {
	item, err := dynamodbattribute.MarshalMap(it)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s", it.ID)
	}
	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	return err
}

func isConditionFailed(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}
