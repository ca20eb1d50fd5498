package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
)

// mongoDocument is the stored form of a namespace or table
type mongoDocument struct {
	ID        string    `bson:"_id"`
	Kind      string    `bson:"kind"`
	Version   int64     `bson:"version"`
	Metadata  string    `bson:"metadata,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoDBCatalog implements Catalog on a MongoDB collection
type MongoDBCatalog struct {
	name       string
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoDBCatalog connects to MongoDB. Documents are kept in the
// cfg.TableName collection of cfg.MongoDatabase.
func NewMongoDBCatalog(ctx context.Context, cfg config.CatalogConfig) (*MongoDBCatalog, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDBURI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongodb")
	}

	return &MongoDBCatalog{
		name:       cfg.Name,
		client:     client,
		collection: client.Database(cfg.MongoDatabase).Collection(cfg.TableName),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (m *MongoDBCatalog) Name() string { return m.name }

func (m *MongoDBCatalog) URI() string {
	return fmt.Sprintf("mongodb://%s/%s", m.collection.Database().Name(), m.collection.Name())
}

func (m *MongoDBCatalog) CreateNamespace(ctx context.Context, namespace []string) error {
	_, err := m.collection.InsertOne(ctx, mongoDocument{
		ID:        namespaceKey(namespace),
		Kind:      kindNamespace,
		Version:   1,
		UpdatedAt: m.now(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return errors.WithStack(ErrNamespaceExists)
	}
	return errors.Wrap(err, "inserting namespace")
}

func (m *MongoDBCatalog) LoadTable(ctx context.Context, id Identifier) (*Table, error) {
	var doc mongoDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": tableKey(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrap(ErrNoSuchTable, id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding table")
	}
	return decodeTable(doc.Metadata)
}

func (m *MongoDBCatalog) CreateTable(ctx context.Context, id Identifier, schema Schema, spec PartitionSpec, location string) (*Table, error) {
	t := newTable(id, schema, spec, location, m.now())
	meta, err := encodeTable(t)
	if err != nil {
		return nil, err
	}
	_, err = m.collection.InsertOne(ctx, mongoDocument{
		ID:        tableKey(id),
		Kind:      kindTable,
		Version:   t.Version,
		Metadata:  meta,
		UpdatedAt: t.LastUpdated,
	})
	if mongo.IsDuplicateKeyError(err) {
		return nil, errors.Wrap(ErrTableExists, id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "inserting table")
	}
	return t, nil
}

// AppendFiles commits files as a new snapshot, guarded by the version read.
func (m *MongoDBCatalog) AppendFiles(ctx context.Context, id Identifier, files []DataFile) (*Table, error) {
	t, err := m.LoadTable(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := t.Version
	t.appendSnapshot(files, m.now())

	meta, err := encodeTable(t)
	if err != nil {
		return nil, err
	}
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": tableKey(id), "version": prev},
		bson.M{"$set": bson.M{"version": t.Version, "metadata": meta, "updated_at": t.LastUpdated}})
	if err != nil {
		return nil, errors.Wrap(err, "updating table")
	}
	if res.MatchedCount == 0 {
		return nil, errors.Wrap(ErrCommitConflict, id.String())
	}
	return t, nil
}

func (m *MongoDBCatalog) Close() error {
	return m.client.Disconnect(context.Background())
}
