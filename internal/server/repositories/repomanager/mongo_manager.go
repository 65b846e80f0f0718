package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepositoryManager vends the document-store user repository backed by
// one collection.
type MongoRepositoryManager struct {
	client *mongo.Client
	col    *mongo.Collection
	users  *users.MongoRepository
}

// NewMongoRepositoryManager binds to an existing collection. client may be
// nil when the caller owns the connection.
func NewMongoRepositoryManager(client *mongo.Client, col *mongo.Collection) *MongoRepositoryManager {
	return &MongoRepositoryManager{client: client, col: col, users: users.NewMongoRepository(col)}
}

// OpenMongo connects to uri and waits for the primary to answer.
func OpenMongo(ctx context.Context, uri, database, collection string) (*MongoRepositoryManager, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect error: %w", err)
	}
	if err := pingWithRetry(ctx, func(ctx context.Context) error { return client.Ping(ctx, nil) }); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping error: %w", err)
	}
	return NewMongoRepositoryManager(client, client.Database(database).Collection(collection)), nil
}

func (m *MongoRepositoryManager) Users() users.Repository {
	return m.users
}

// RunMigrations creates the collection indexes.
func (m *MongoRepositoryManager) RunMigrations(ctx context.Context) error {
	return users.EnsureIndexes(ctx, m.col)
}

func (m *MongoRepositoryManager) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}
