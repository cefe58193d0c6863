package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store holds the Mongo client and the collections the handlers work on.
// It is created once in main and passed down explicitly.
type Store struct {
	client *mongo.Client

	Users       *mongo.Collection
	Rooms       *mongo.Collection
	RoomMembers *mongo.Collection
	Posts       *mongo.Collection
	Counters    *mongo.Collection
	PushSubs    *mongo.Collection
}

func Connect(uri string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database("photoroom")
	s := &Store{
		client:      client,
		Users:       db.Collection("users"),
		Rooms:       db.Collection("rooms"),
		RoomMembers: db.Collection("room_members"),
		Posts:       db.Collection("posts"),
		Counters:    db.Collection("counters"),
		PushSubs:    db.Collection("push_subscriptions"),
	}

	log.Println("Connected to MongoDB successfully")
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Disconnect() error {
	if s == nil || s.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.client.Disconnect(ctx); err != nil {
		return err
	}

	log.Println("Disconnected from MongoDB")
	return nil
}

// NextPostID returns the next value of the monotonically increasing post
// sequence, used as the polling watermark.
func (s *Store) NextPostID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}

	err := s.Counters.FindOneAndUpdate(
		ctx,
		bson.M{"_id": "posts"},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}

	return counter.Seq, nil
}

// SaveTokenBundle persists a user's refreshed OAuth token material.
func (s *Store) SaveTokenBundle(ctx context.Context, userID primitive.ObjectID, bundle []byte) error {
	_, err := s.Users.UpdateOne(
		ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"tokenBundle": bundle}},
	)
	return err
}
