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
	"chatcore/internal/visibility"
)

type MessageRepo struct {
	coll *mdb.Collection
}

func NewMessageRepo(db *mdb.Database) *MessageRepo {
	return &MessageRepo{coll: db.Collection(messagesCollection)}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	if m.UsersRelated == nil {
		m.UsersRelated = []string{}
	}
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var m domain.Message
	err := r.coll.FindOne(ctx, b.M{"_id": id}).Decode(&m)
	if errors.Is(err, mdb.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &m, nil
}

func (r *MessageRepo) UpdateText(ctx context.Context, id, participantID, text string) (*domain.Message, error) {
	return r.findOneAndUpdate(ctx, participantFilter(id, participantID), b.M{
		"$set": b.M{"text": text, "is_edited": true, "updated_at": time.Now().UTC()},
	})
}

// MarkDeleted only $sets flags that are on, so stored flags are never
// cleared.
func (r *MessageRepo) MarkDeleted(ctx context.Context, id, participantID string, flags domain.DeleteFlags) (*domain.Message, error) {
	set := b.M{"updated_at": time.Now().UTC()}
	if flags.ForSender {
		set["deleted_for_sender"] = true
	}
	if flags.ForReceiver {
		set["deleted_for_receiver"] = true
	}
	if flags.ForAll {
		set["deleted_for_all"] = true
	}
	return r.findOneAndUpdate(ctx, participantFilter(id, participantID), b.M{"$set": set})
}

func (r *MessageRepo) MarkConversationDeleted(ctx context.Context, cd domain.ConversationDelete) (int64, error) {
	res, err := r.coll.UpdateMany(ctx, conversationFilter(cd), conversationDeleteUpdate(cd, time.Now().UTC()))
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	return res.MatchedCount, nil
}

func (r *MessageRepo) findOneAndUpdate(ctx context.Context, filter, update any) (*domain.Message, error) {
	var m domain.Message
	err := r.coll.FindOneAndUpdate(ctx, filter, update,
		mdbopts.FindOneAndUpdate().SetReturnDocument(mdbopts.After)).Decode(&m)
	if errors.Is(err, mdb.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	return &m, nil
}

func participantFilter(id, participantID string) b.M {
	return b.M{
		"_id": id,
		"$or": b.A{
			b.M{"sender_id": participantID},
			b.M{"receiver_id": participantID},
		},
	}
}

func conversationFilter(cd domain.ConversationDelete) b.M {
	return b.M{"$or": b.A{
		b.M{"sender_id": cd.ActorID, "receiver_id": cd.CounterpartID},
		b.M{"sender_id": cd.CounterpartID, "receiver_id": cd.ActorID},
	}}
}

// conversationDeleteUpdate renders the bulk rule as an update pipeline:
// each flag becomes its stored value OR'ed with the rule evaluated against
// the document's own sender_id and receiver_id.
func conversationDeleteUpdate(cd domain.ConversationDelete, now time.Time) mdb.Pipeline {
	rule := visibility.BulkRule(cd)
	actor := b.D{{Key: "$literal", Value: cd.ActorID}}
	flag := func(field string, always, asSender, asReceiver bool) b.D {
		return b.D{{Key: "$or", Value: b.A{
			"$" + field,
			always,
			b.D{{Key: "$and", Value: b.A{b.D{{Key: "$eq", Value: b.A{"$sender_id", actor}}}, asSender}}},
			b.D{{Key: "$and", Value: b.A{b.D{{Key: "$eq", Value: b.A{"$receiver_id", actor}}}, asReceiver}}},
		}}}
	}
	return mdb.Pipeline{
		{{Key: "$set", Value: b.D{
			{Key: "deleted_for_sender", Value: flag("deleted_for_sender", rule.Always.ForSender, rule.AsSender.ForSender, rule.AsReceiver.ForSender)},
			{Key: "deleted_for_receiver", Value: flag("deleted_for_receiver", rule.Always.ForReceiver, rule.AsSender.ForReceiver, rule.AsReceiver.ForReceiver)},
			{Key: "deleted_for_all", Value: flag("deleted_for_all", rule.Always.ForAll, rule.AsSender.ForAll, rule.AsReceiver.ForAll)},
			{Key: "updated_at", Value: now},
		}}},
	}
}
