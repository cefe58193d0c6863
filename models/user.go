package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type User struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	GoogleID    string             `bson:"googleId" json:"googleId"`
	Email       string             `bson:"email" json:"email"`
	Name        string             `bson:"name" json:"name"`
	Avatar      string             `bson:"avatar" json:"avatar"`
	TokenBundle []byte             `bson:"tokenBundle,omitempty" json:"-"` // serialized OAuth tokens, never exposed
	CreatedAt   int64              `bson:"createdAt" json:"createdAt"`
	LastSeen    int64              `bson:"lastSeen" json:"lastSeen"`
}
