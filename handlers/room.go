package handlers

import (
	"log"
	"net/http"
	"time"

	"photoroom/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CreateRoomInput struct {
	Institution string `json:"institution" binding:"required"`
	RoomName    string `json:"room_name" binding:"required"`
}

// CreateRoom makes the caller the host of a new room and returns the
// shareable join URL.
func (a *App) CreateRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	var input CreateRoomInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := newShortToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate room token"})
		return
	}

	room := models.Room{
		ID:          primitive.NewObjectID(),
		Token:       token,
		OwnerID:     userID,
		Institution: input.Institution,
		Name:        input.RoomName,
		CreatedAt:   time.Now().Unix(),
	}

	ctx, cancel := requestContext()
	defer cancel()

	if _, err := a.Store.Rooms.InsertOne(ctx, room); err != nil {
		log.Printf("[CreateRoom] insert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":        token,
		"redirect_url": a.BaseURL + "/join/" + token,
	})
}

// GetRoom returns the room and its feed, newest first, and records the
// caller as a member. The join record is an upsert keyed on (room, user) so
// opening the room twice keeps the original joined-at timestamp.
func (a *App) GetRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	room, err := a.roomByToken(ctx, c.Param("token"))
	if err == errNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch room"})
		return
	}

	_, err = a.Store.RoomMembers.UpdateOne(
		ctx,
		bson.M{"roomId": room.ID, "userId": userID},
		bson.M{"$setOnInsert": bson.M{
			"roomId":   room.ID,
			"userId":   userID,
			"joinedAt": time.Now().Unix(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		log.Printf("[GetRoom] member upsert failed: %v", err)
	}

	posts, err := a.feedItems(ctx, room, userID, 0)
	if err != nil {
		log.Printf("[GetRoom] feed query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch posts"})
		return
	}

	// newest first for the initial render
	for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
		posts[i], posts[j] = posts[j], posts[i]
	}

	c.JSON(http.StatusOK, gin.H{
		"room": gin.H{
			"token":       room.Token,
			"name":        room.Name,
			"institution": room.Institution,
			"is_owner":    room.OwnerID == userID,
		},
		"posts": posts,
	})
}

// DeleteRoom removes a room and cascades deletion of its posts. Owner only.
func (a *App) DeleteRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	room, err := a.roomByToken(ctx, c.Param("token"))
	if err == errNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch room"})
		return
	}

	if room.OwnerID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized"})
		return
	}

	if _, err := a.Store.Posts.DeleteMany(ctx, bson.M{"roomId": room.ID}); err != nil {
		log.Printf("[DeleteRoom] post cascade failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete room posts"})
		return
	}
	if _, err := a.Store.RoomMembers.DeleteMany(ctx, bson.M{"roomId": room.ID}); err != nil {
		log.Printf("[DeleteRoom] member cleanup failed: %v", err)
	}
	if _, err := a.Store.Rooms.DeleteOne(ctx, bson.M{"_id": room.ID}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete room"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
