package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"photoroom/drive"
	"photoroom/media"
	"photoroom/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const maxUploadBytes = 16 << 20 // matches the request body cap

// postBackend is the upload path's view of the world, split out like
// cdnBackend so the handler flow is testable without Mongo or Drive.
type postBackend interface {
	roomByToken(ctx context.Context, token string) (*models.Room, error)
	userByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	uploadPhoto(ctx context.Context, author *models.User, data []byte, filename, mimeType string) (string, error)
	nextPostID(ctx context.Context) (int64, error)
	insertPost(ctx context.Context, post models.Post) error
	notifyNewPost(room *models.Room, author *models.User, caption string)
}

// postRemover covers the delete path: find the post, find its room, remove.
type postRemover interface {
	postBySeq(ctx context.Context, seq int64) (*models.Post, error)
	roomByID(ctx context.Context, id primitive.ObjectID) (*models.Room, error)
	removePost(ctx context.Context, id primitive.ObjectID) error
}

func (a *App) uploadPhoto(ctx context.Context, author *models.User, data []byte, filename, mimeType string) (string, error) {
	return a.Drive.Upload(ctx, author, data, filename, mimeType)
}

func (a *App) nextPostID(ctx context.Context) (int64, error) {
	return a.Store.NextPostID(ctx)
}

func (a *App) insertPost(ctx context.Context, post models.Post) error {
	_, err := a.Store.Posts.InsertOne(ctx, post)
	return err
}

func (a *App) notifyNewPost(room *models.Room, author *models.User, caption string) {
	a.notifyRoom(room, author, caption)
}

func (a *App) postBySeq(ctx context.Context, seq int64) (*models.Post, error) {
	var post models.Post
	err := a.Store.Posts.FindOne(ctx, bson.M{"seq": seq}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (a *App) roomByID(ctx context.Context, id primitive.ObjectID) (*models.Room, error) {
	var room models.Room
	err := a.Store.Rooms.FindOne(ctx, bson.M{"_id": id}).Decode(&room)
	if err == mongo.ErrNoDocuments {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (a *App) removePost(ctx context.Context, id primitive.ObjectID) error {
	_, err := a.Store.Posts.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// CreatePost handles the multipart photo upload: transcode, push to the
// author's Drive, then record the post under the next watermark id.
func (a *App) CreatePost(c *gin.Context) {
	createPost(c, a)
}

func createPost(c *gin.Context, backend postBackend) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	lookupCtx, cancelLookup := requestContext()
	defer cancelLookup()

	room, err := backend.roomByToken(lookupCtx, c.Param("roomId"))
	if err == errNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch room"})
		return
	}

	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse form data"})
		return
	}

	photo, header, err := c.Request.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing photo"})
		return
	}
	defer photo.Close()
	caption := c.PostForm("caption")

	data, err := io.ReadAll(io.LimitReader(photo, maxUploadBytes+1))
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read photo"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Photo too large"})
		return
	}

	declaredMime := header.Header.Get("Content-Type")
	if declaredMime == "" {
		declaredMime = "application/octet-stream"
	}

	prepared, mimeType, err := media.Prepare(data, declaredMime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported media"})
		return
	}

	author, err := backend.userByID(lookupCtx, userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown user"})
		return
	}

	// Lookups are done; release their context before the slow upload so
	// nothing downstream inherits its deadline.
	cancelLookup()

	// Drive upload can outlive the default query timeout on slow links.
	uploadCtx, cancelUpload := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelUpload()

	fileID, err := backend.uploadPhoto(uploadCtx, author, prepared, uploadFilename(mimeType), mimeType)
	if errors.Is(err, drive.ErrAuthExpired) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Drive authorization expired, please sign in again"})
		return
	}
	if err != nil {
		log.Printf("[CreatePost] drive upload failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store photo"})
		return
	}

	// The persistence budget starts now, however long the upload took.
	writeCtx, cancelWrite := requestContext()
	defer cancelWrite()

	seq, err := backend.nextPostID(writeCtx)
	if err != nil {
		log.Printf("[CreatePost] counter error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create post"})
		return
	}

	post := models.Post{
		ID:        primitive.NewObjectID(),
		Seq:       seq,
		RoomID:    room.ID,
		AuthorID:  userID,
		FileID:    fileID,
		Caption:   caption,
		CreatedAt: time.Now().Unix(),
	}

	if err := backend.insertPost(writeCtx, post); err != nil {
		log.Printf("[CreatePost] insert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create post"})
		return
	}

	backend.notifyNewPost(room, author, caption)

	c.JSON(http.StatusOK, gin.H{"success": true, "id": seq})
}

func uploadFilename(mimeType string) string {
	ext := ".bin"
	switch mimeType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/gif":
		ext = ".gif"
	case "image/webp":
		ext = ".webp"
	}
	return uuid.New().String() + ext
}

// GetUpdates returns posts with id greater than the caller's watermark,
// ascending, so clients can poll with their last seen id.
func (a *App) GetUpdates(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	since, err := parseSince(c.Query("since"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since parameter"})
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	room, err := a.roomByToken(ctx, c.Param("roomId"))
	if err == errNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch room"})
		return
	}

	items, err := a.feedItems(ctx, room, userID, since)
	if err != nil {
		log.Printf("[GetUpdates] feed query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch posts"})
		return
	}

	c.JSON(http.StatusOK, items)
}

func parseSince(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || since < 0 {
		return 0, errors.New("invalid since")
	}
	return since, nil
}

// feedItems loads posts past the watermark in ascending id order and shapes
// them for the feed.
func (a *App) feedItems(ctx context.Context, room *models.Room, viewerID primitive.ObjectID, since int64) ([]gin.H, error) {
	cursor, err := a.Store.Posts.Find(
		ctx,
		bson.M{"roomId": room.ID, "seq": bson.M{"$gt": since}},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var posts []models.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}

	authors := make(map[primitive.ObjectID]*models.User)
	items := make([]gin.H, 0, len(posts))
	for _, post := range posts {
		author, seen := authors[post.AuthorID]
		if !seen {
			author, err = a.userByID(ctx, post.AuthorID)
			if err != nil && err != errNotFound {
				return nil, err
			}
			authors[post.AuthorID] = author
		}
		items = append(items, updateItem(post, author, viewerID, room.OwnerID))
	}

	return items, nil
}

// updateItem shapes one post for the polling feed. author may be nil when
// the account has since disappeared.
func updateItem(post models.Post, author *models.User, viewerID, ownerID primitive.ObjectID) gin.H {
	name := "Unknown User"
	avatar := fallbackAvatar
	if author != nil {
		if author.Name != "" {
			name = author.Name
		}
		if author.Avatar != "" {
			avatar = author.Avatar
		}
	}

	return gin.H{
		"id":             post.Seq,
		"author_name":    name,
		"author_avatar":  avatar,
		"author_initial": authorInitial(name),
		"image_url":      "/cdn/" + post.FileID,
		"caption":        post.Caption,
		"can_delete":     viewerID == post.AuthorID || viewerID == ownerID,
	}
}

// DeletePost removes a post. Allowed for the post author and the room owner.
func (a *App) DeletePost(c *gin.Context) {
	deletePost(c, a)
}

func deletePost(c *gin.Context, backend postRemover) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	seq, err := strconv.ParseInt(c.Param("postId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID"})
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	post, err := backend.postBySeq(ctx, seq)
	if err == errNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}

	room, err := backend.roomByID(ctx, post.RoomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch room"})
		return
	}

	if userID != post.AuthorID && userID != room.OwnerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized"})
		return
	}

	if err := backend.removePost(ctx, post.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete post"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
