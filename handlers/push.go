package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"photoroom/models"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PushSubscription struct {
	ID     primitive.ObjectID   `bson:"_id,omitempty"`
	UserID primitive.ObjectID   `bson:"userId"`
	Sub    webpush.Subscription `bson:"sub"`
}

func (a *App) GetVapidPublicKey(c *gin.Context) {
	publicKey := os.Getenv("VAPID_PUBLIC_KEY")
	if publicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "VAPID public key not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": publicKey})
}

// SubscribePush stores a browser push subscription, one per user.
func (a *App) SubscribePush(c *gin.Context) {
	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
		Keys     struct {
			P256dh string `json:"p256dh" binding:"required"`
			Auth   string `json:"auth" binding:"required"`
		} `json:"keys" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	sub := PushSubscription{
		ID:     primitive.NewObjectID(),
		UserID: userID,
		Sub: webpush.Subscription{
			Endpoint: req.Endpoint,
			Keys: webpush.Keys{
				P256dh: req.Keys.P256dh,
				Auth:   req.Keys.Auth,
			},
		},
	}

	_, err := a.Store.PushSubs.UpdateOne(
		ctx,
		bson.M{"userId": userID},
		bson.M{"$set": sub},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		log.Printf("[SubscribePush] failed to save subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// notifyRoom tells the other members about a new post. Entirely best-effort:
// any failure is logged and the upload succeeds regardless.
func (a *App) notifyRoom(room *models.Room, author *models.User, caption string) {
	vapidPublic := os.Getenv("VAPID_PUBLIC_KEY")
	vapidPrivate := os.Getenv("VAPID_PRIVATE_KEY")
	if vapidPublic == "" || vapidPrivate == "" {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	cursor, err := a.Store.RoomMembers.Find(ctx, bson.M{
		"roomId": room.ID,
		"userId": bson.M{"$ne": author.ID},
	})
	if err != nil {
		log.Printf("[notifyRoom] member query failed: %v", err)
		return
	}
	defer cursor.Close(ctx)

	var members []models.RoomMember
	if err := cursor.All(ctx, &members); err != nil {
		log.Printf("[notifyRoom] member decode failed: %v", err)
		return
	}

	payload, err := json.Marshal(gin.H{
		"title":   room.Name,
		"body":    author.Name + " shared a photo",
		"caption": caption,
		"room":    room.Token,
	})
	if err != nil {
		return
	}

	for _, member := range members {
		var sub PushSubscription
		err := a.Store.PushSubs.FindOne(ctx, bson.M{"userId": member.UserID}).Decode(&sub)
		if err != nil {
			continue
		}

		resp, err := webpush.SendNotification(payload, &sub.Sub, &webpush.Options{
			VAPIDPublicKey:  vapidPublic,
			VAPIDPrivateKey: vapidPrivate,
			TTL:             60,
		})
		if err != nil {
			log.Printf("[notifyRoom] push to %s failed: %v", member.UserID.Hex(), err)
			continue
		}
		resp.Body.Close()
	}
}
