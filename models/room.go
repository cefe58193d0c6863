package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type Room struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Token       string             `bson:"token" json:"token"` // short URL-safe id used in share links
	OwnerID     primitive.ObjectID `bson:"ownerId" json:"ownerId"`
	Institution string             `bson:"institution" json:"institution"`
	Name        string             `bson:"name" json:"name"`
	CreatedAt   int64              `bson:"createdAt" json:"createdAt"`
}

type RoomMember struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RoomID   primitive.ObjectID `bson:"roomId" json:"roomId"`
	UserID   primitive.ObjectID `bson:"userId" json:"userId"`
	JoinedAt int64              `bson:"joinedAt" json:"joinedAt"`
}
