package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"photoroom/drive"
	"photoroom/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"google.golang.org/api/googleapi"
)

// relayBufferSize bounds memory per proxied request regardless of file size.
const relayBufferSize = 32 * 1024

const cacheControl = "public, max-age=31536000"

// cdnBackend is the proxy's view of the world: map a file id to its owner,
// then fetch the bytes as that owner. Split out so the relay logic is
// testable without Mongo or Drive.
type cdnBackend interface {
	FileOwner(ctx context.Context, fileID string) (*models.User, error)
	Fetch(ctx context.Context, owner *models.User, fileID string) (*http.Response, error)
}

// FileOwner resolves a Drive file id to the author of the post referencing
// it. File ids map to exactly one post.
func (a *App) FileOwner(ctx context.Context, fileID string) (*models.User, error) {
	var post models.Post
	err := a.Store.Posts.FindOne(ctx, bson.M{"fileId": fileID}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return a.userByID(ctx, post.AuthorID)
}

// Fetch streams the file from Drive authenticated as its owner.
func (a *App) Fetch(ctx context.Context, owner *models.User, fileID string) (*http.Response, error) {
	return a.Drive.Fetch(ctx, owner, fileID)
}

// ServeCDN proxies a stored photo back to the browser. Viewers are arbitrary
// room members but the underlying storage is private per user, so every
// fetch authenticates as the content's owner; the owner's token never
// reaches the browser.
func (a *App) ServeCDN(c *gin.Context) {
	serveCDN(c, a)
}

func serveCDN(c *gin.Context, backend cdnBackend) {
	fileID := c.Param("fileId")
	ctx := c.Request.Context()

	owner, err := backend.FileOwner(ctx, fileID)
	if errors.Is(err, errNotFound) {
		c.String(http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		log.Printf("[CDN] lookup failed for %s: %v", fileID, err)
		c.String(http.StatusInternalServerError, "lookup failed")
		return
	}

	resp, err := backend.Fetch(ctx, owner, fileID)
	if errors.Is(err, drive.ErrAuthExpired) {
		c.String(http.StatusForbidden, "access denied")
		return
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		// Relay the upstream status; no cache header on errors.
		c.String(gerr.Code, "upstream error")
		return
	}
	if err != nil {
		log.Printf("[CDN] fetch failed for %s: %v", fileID, err)
		c.String(http.StatusBadGateway, "storage error")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.String(resp.StatusCode, "upstream error")
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		c.Header("Content-Length", cl)
	}
	c.Header("Cache-Control", cacheControl)
	c.Status(http.StatusOK)

	if _, err := io.CopyBuffer(c.Writer, resp.Body, make([]byte, relayBufferSize)); err != nil {
		// Headers are gone; nothing left to do but log.
		log.Printf("[CDN] relay interrupted for %s: %v", fileID, err)
	}
}
