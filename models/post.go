package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type Post struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Seq       int64              `bson:"seq" json:"seq"` // monotonically increasing, the polling watermark
	RoomID    primitive.ObjectID `bson:"roomId" json:"roomId"`
	AuthorID  primitive.ObjectID `bson:"authorId" json:"authorId"`
	FileID    string             `bson:"fileId" json:"fileId"` // Drive file id, one post per file
	Caption   string             `bson:"caption" json:"caption"`
	CreatedAt int64              `bson:"createdAt" json:"createdAt"`
}
