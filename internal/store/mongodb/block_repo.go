package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	b "go.mongodb.org/mongo-driver/bson"
	mdb "go.mongodb.org/mongo-driver/mongo"
	mdbopts "go.mongodb.org/mongo-driver/mongo/options"

	"chatcore/internal/domain"
)

type BlockRepo struct {
	coll *mdb.Collection
}

func NewBlockRepo(db *mdb.Database) *BlockRepo {
	return &BlockRepo{coll: db.Collection(blocksCollection)}
}

var _ domain.BlockRepository = (*BlockRepo)(nil)

// Create upserts the relation so that blocking twice keeps the first
// timestamp.
func (r *BlockRepo) Create(ctx context.Context, rel *domain.BlockRelation) error {
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}
	_, err := r.coll.UpdateOne(ctx,
		b.M{"blocker_id": rel.BlockerID, "blocked_id": rel.BlockedID},
		b.M{"$setOnInsert": b.M{"created_at": rel.CreatedAt}},
		mdbopts.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

func (r *BlockRepo) Delete(ctx context.Context, blockerID, blockedID string) error {
	res, err := r.coll.DeleteOne(ctx, b.M{"blocker_id": blockerID, "blocked_id": blockedID})
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *BlockRepo) Find(ctx context.Context, blockerID, blockedID string) (*domain.BlockRelation, error) {
	var rel domain.BlockRelation
	err := r.coll.FindOne(ctx, b.M{"blocker_id": blockerID, "blocked_id": blockedID}).Decode(&rel)
	if errors.Is(err, mdb.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find block: %w", err)
	}
	return &rel, nil
}

func (r *BlockRepo) ListBlockedBy(ctx context.Context, blockerID string) ([]*domain.BlockRelation, error) {
	cur, err := r.coll.Find(ctx, b.M{"blocker_id": blockerID},
		mdbopts.Find().SetSort(b.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer cur.Close(ctx)

	var res []*domain.BlockRelation
	if err := cur.All(ctx, &res); err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}
	return res, nil
}
