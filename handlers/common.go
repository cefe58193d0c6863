package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"
	"unicode"

	"photoroom/database"
	"photoroom/drive"
	"photoroom/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/oauth2"
)

// Shared across all handler files
const fallbackAvatar = "https://upload.wikimedia.org/wikipedia/commons/8/89/Portrait_Placeholder.png"

var errNotFound = errors.New("not found")

// App carries everything the handlers need: the storage handle, the OAuth
// config and the Drive client. Built once in main, no package globals.
type App struct {
	Store     *database.Store
	OAuth     *oauth2.Config
	Drive     *drive.Client
	JWTSecret []byte
	BaseURL   string // public base for share links, e.g. https://photoroom.example
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// currentUserID reads the user id that the JWT middleware put into the
// request context.
func currentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.GetString("userId"))
	return id, err == nil
}

func (a *App) userByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := a.Store.Users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *App) roomByToken(ctx context.Context, token string) (*models.Room, error) {
	var room models.Room
	err := a.Store.Rooms.FindOne(ctx, bson.M{"token": token}).Decode(&room)
	if err == mongo.ErrNoDocuments {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// newShortToken returns an 8-character URL-safe room token.
func newShortToken() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// authorInitial is the single uppercase letter shown when an avatar is
// missing.
func authorInitial(name string) string {
	name = strings.TrimSpace(name)
	for _, r := range name {
		return string(unicode.ToUpper(r))
	}
	return "?"
}
