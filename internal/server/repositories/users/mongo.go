package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository stores users as documents in a single collection.
type MongoRepository struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col, now: time.Now}
}

// EnsureIndexes creates the unique email index and the token lookup indexes.
func EnsureIndexes(ctx context.Context, col *mongo.Collection) error {
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "verificationToken", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "resetPasswordToken", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("mongo error: %w", err)
	}
	return nil
}

// BSON dates carry millisecond precision.
func (r *MongoRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Millisecond)
}

func (r *MongoRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	ts := r.timestamp()
	user.CreatedAt = ts
	user.UpdatedAt = ts
	user.Version = 1

	if _, err := r.col.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("mongo error: %w", err)
	}
	return user, nil
}

func (r *MongoRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *MongoRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *MongoRepository) GetUserByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}
	return r.findOne(ctx, bson.D{{Key: "verificationToken", Value: token}})
}

func (r *MongoRepository) GetUserByResetToken(ctx context.Context, token string, now time.Time) (*models.User, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}
	return r.findOne(ctx, bson.D{
		{Key: "resetPasswordToken", Value: token},
		{Key: "resetPasswordExpire", Value: bson.D{{Key: "$gt", Value: now}}},
	})
}

func (r *MongoRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	next := user.Clone()
	next.Version = user.Version + 1
	next.UpdatedAt = r.timestamp()

	filter := bson.D{{Key: "_id", Value: user.ID}, {Key: "version", Value: user.Version}}
	res, err := r.col.ReplaceOne(ctx, filter, next)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("mongo error: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, common.ErrVersionConflict
	}

	*user = *next
	return user, nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.D) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("mongo error: %w", err)
	}
	return &u, nil
}
