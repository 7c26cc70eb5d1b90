package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	b "go.mongodb.org/mongo-driver/bson"
	mdb "go.mongodb.org/mongo-driver/mongo"

	"chatcore/internal/domain"
)

type UserRepo struct {
	coll *mdb.Collection
}

func NewUserRepo(db *mdb.Database) *UserRepo {
	return &UserRepo{coll: db.Collection(usersCollection)}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	now := time.Now().UTC()
	u.CreatedAt, u.LastSeen = now, now
	u.IsConnected, u.ChannelID = false, nil
	if _, err := r.coll.InsertOne(ctx, u); err != nil {
		if mdb.IsDuplicateKeyError(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, b.M{"_id": id})
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, b.M{"username": username})
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, b.M{"email": email})
}

func (r *UserRepo) SetPresence(ctx context.Context, id string, channelID *string) error {
	update := b.M{"$set": b.M{"is_connected": true, "channel_id": channelID, "last_seen": time.Now().UTC()}}
	if channelID == nil {
		update = b.M{
			"$set":   b.M{"is_connected": false, "last_seen": time.Now().UTC()},
			"$unset": b.M{"channel_id": ""},
		}
	}
	if _, err := r.coll.UpdateOne(ctx, b.M{"_id": id}, update); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

func (r *UserRepo) ClearChannel(ctx context.Context, channelID string) error {
	_, err := r.coll.UpdateOne(ctx, b.M{"channel_id": channelID}, b.M{
		"$set":   b.M{"is_connected": false, "last_seen": time.Now().UTC()},
		"$unset": b.M{"channel_id": ""},
	})
	if err != nil {
		return fmt.Errorf("clear channel: %w", err)
	}
	return nil
}

func (r *UserRepo) findOne(ctx context.Context, filter b.M) (*domain.User, error) {
	var u domain.User
	err := r.coll.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mdb.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
