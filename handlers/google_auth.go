package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"photoroom/drive"
	"photoroom/middleware"
	"photoroom/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/oauth2"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type GoogleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleAuthURL returns the consent URL. Offline access plus prompt=consent
// so Google always hands back a refresh token; without one the Drive pipeline
// dies as soon as the first access token expires.
func (a *App) GoogleAuthURL(c *gin.Context) {
	state := primitive.NewObjectID().Hex()

	url := a.OAuth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// GoogleCallback exchanges the authorization code, fetches the Google
// profile, upserts the user (the token bundle is replaced on every login)
// and issues a session JWT.
func (a *App) GoogleCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authorization code missing"})
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	token, err := a.OAuth.Exchange(ctx, code)
	if err != nil {
		log.Printf("[GoogleCallback] token exchange failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to exchange authorization code"})
		return
	}

	client := a.OAuth.Client(ctx, token)
	resp, err := client.Get(userInfoURL)
	if err != nil {
		log.Printf("[GoogleCallback] userinfo fetch failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user information"})
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read user information"})
		return
	}

	var googleUser GoogleUserInfo
	if err := json.Unmarshal(data, &googleUser); err != nil || googleUser.Email == "" {
		log.Printf("[GoogleCallback] bad userinfo payload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse user information"})
		return
	}

	bundle, err := drive.MarshalBundle(token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store credentials"})
		return
	}

	user, err := a.upsertGoogleUser(c, googleUser, bundle)
	if err != nil {
		return // response already written
	}

	sessionToken, expires, err := a.issueSessionToken(user.ID.Hex())
	if err != nil {
		log.Printf("[GoogleCallback] failed to sign session token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	log.Printf("[GoogleCallback] authentication successful for %s", user.Email)

	c.JSON(http.StatusOK, gin.H{
		"token":   sessionToken,
		"userId":  user.ID.Hex(),
		"email":   user.Email,
		"name":    user.Name,
		"avatar":  user.Avatar,
		"expires": expires.Unix(),
	})
}

func (a *App) upsertGoogleUser(c *gin.Context, googleUser GoogleUserInfo, bundle []byte) (*models.User, error) {
	ctx, cancel := requestContext()
	defer cancel()

	var user models.User
	err := a.Store.Users.FindOne(ctx, bson.M{"googleId": googleUser.ID}).Decode(&user)

	switch {
	case err == mongo.ErrNoDocuments:
		avatar := googleUser.Picture
		if avatar == "" {
			avatar = fallbackAvatar
		}
		user = models.User{
			ID:          primitive.NewObjectID(),
			GoogleID:    googleUser.ID,
			Email:       googleUser.Email,
			Name:        googleUser.Name,
			Avatar:      avatar,
			TokenBundle: bundle,
			CreatedAt:   time.Now().Unix(),
			LastSeen:    time.Now().Unix(),
		}
		if _, err := a.Store.Users.InsertOne(ctx, user); err != nil {
			log.Printf("[GoogleCallback] failed to insert user: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user account"})
			return nil, err
		}
		log.Printf("[GoogleCallback] new user created: %s", user.Email)

	case err != nil:
		log.Printf("[GoogleCallback] database error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, err

	default:
		update := bson.M{"$set": bson.M{
			"email":       googleUser.Email,
			"name":        googleUser.Name,
			"tokenBundle": bundle,
			"lastSeen":    time.Now().Unix(),
		}}
		if googleUser.Picture != "" && (user.Avatar == "" || user.Avatar == fallbackAvatar) {
			update["$set"].(bson.M)["avatar"] = googleUser.Picture
			user.Avatar = googleUser.Picture
		}
		if _, err := a.Store.Users.UpdateOne(ctx, bson.M{"_id": user.ID}, update); err != nil {
			log.Printf("[GoogleCallback] failed to update user: %v", err)
		}
		user.Email = googleUser.Email
		user.Name = googleUser.Name
		user.TokenBundle = bundle
	}

	return &user, nil
}

func (a *App) issueSessionToken(userID string) (string, time.Time, error) {
	expires := time.Now().Add(24 * time.Hour)
	claims := &middleware.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.JWTSecret)
	return signed, expires, err
}

// GetMyProfile returns the logged-in user's profile.
func (a *App) GetMyProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	user, err := a.userByID(ctx, userID)
	if err == errNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch profile"})
		return
	}

	if user.Avatar == "" {
		user.Avatar = fallbackAvatar
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        user.ID.Hex(),
		"email":     user.Email,
		"name":      user.Name,
		"avatar":    user.Avatar,
		"createdAt": user.CreatedAt,
		"lastSeen":  user.LastSeen,
	})
}
