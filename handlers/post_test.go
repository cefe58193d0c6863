package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"photoroom/drive"
	"photoroom/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestParseSince(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"42", 42, false},
		{"-1", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := parseSince(tt.raw)
		if tt.wantErr != (err != nil) {
			t.Errorf("parseSince(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseSince(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestUpdateItemCanDelete(t *testing.T) {
	author := &models.User{ID: primitive.NewObjectID(), Name: "Ana"}
	owner := primitive.NewObjectID()
	stranger := primitive.NewObjectID()

	post := models.Post{
		Seq:      7,
		AuthorID: author.ID,
		FileID:   "file123",
		Caption:  "hi",
	}

	tests := []struct {
		name   string
		viewer primitive.ObjectID
		want   bool
	}{
		{"author", author.ID, true},
		{"room owner", owner, true},
		{"stranger", stranger, false},
	}

	for _, tt := range tests {
		item := updateItem(post, author, tt.viewer, owner)
		if item["can_delete"] != tt.want {
			t.Errorf("%s: can_delete = %v, want %v", tt.name, item["can_delete"], tt.want)
		}
	}
}

func TestUpdateItemShape(t *testing.T) {
	author := &models.User{ID: primitive.NewObjectID(), Name: "maría", Avatar: "https://a/x.png"}
	post := models.Post{Seq: 12, AuthorID: author.ID, FileID: "f-9", Caption: "look"}

	item := updateItem(post, author, author.ID, primitive.NewObjectID())

	if item["id"] != int64(12) {
		t.Errorf("id = %v, want 12", item["id"])
	}
	if item["image_url"] != "/cdn/f-9" {
		t.Errorf("image_url = %v", item["image_url"])
	}
	if item["author_name"] != "maría" {
		t.Errorf("author_name = %v", item["author_name"])
	}
	if item["author_initial"] != "M" {
		t.Errorf("author_initial = %v, want M", item["author_initial"])
	}
	if item["caption"] != "look" {
		t.Errorf("caption = %v", item["caption"])
	}
}

func TestUpdateItemMissingAuthor(t *testing.T) {
	post := models.Post{Seq: 3, AuthorID: primitive.NewObjectID(), FileID: "f"}

	item := updateItem(post, nil, primitive.NewObjectID(), primitive.NewObjectID())

	if item["author_name"] != "Unknown User" {
		t.Errorf("author_name = %v", item["author_name"])
	}
	if item["author_avatar"] != fallbackAvatar {
		t.Errorf("author_avatar = %v", item["author_avatar"])
	}
	if item["author_initial"] != "U" {
		t.Errorf("author_initial = %v", item["author_initial"])
	}
	if item["can_delete"] != false {
		t.Error("stranger must not be able to delete")
	}
}

func TestAuthorInitial(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"ana", "A"},
		{"  bruno", "B"},
		{"", "?"},
		{"  ", "?"},
		{"ólafur", "Ó"},
	}
	for _, tt := range tests {
		if got := authorInitial(tt.name); got != tt.want {
			t.Errorf("authorInitial(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNewShortToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := newShortToken()
		if err != nil {
			t.Fatalf("newShortToken: %v", err)
		}
		if len(token) != 8 {
			t.Fatalf("token length = %d, want 8", len(token))
		}
		if strings.ContainsAny(token, "/+=") {
			t.Fatalf("token %q is not URL-safe", token)
		}
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true
	}
}

type fakePostBackend struct {
	room   *models.Room
	author *models.User

	uploadErr error

	lookupCtx    context.Context
	lookupLive   bool
	writeLive    bool
	uploaded     []byte
	insertedPost *models.Post
	notified     bool
}

func (f *fakePostBackend) roomByToken(ctx context.Context, token string) (*models.Room, error) {
	f.lookupCtx = ctx
	if f.room == nil || f.room.Token != token {
		return nil, errNotFound
	}
	return f.room, nil
}

func (f *fakePostBackend) userByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	if f.author == nil || f.author.ID != id {
		return nil, errNotFound
	}
	return f.author, nil
}

func (f *fakePostBackend) uploadPhoto(ctx context.Context, author *models.User, data []byte, filename, mimeType string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploaded = data
	return "drive-file-1", nil
}

func (f *fakePostBackend) nextPostID(ctx context.Context) (int64, error) {
	f.lookupLive = f.lookupCtx != nil && f.lookupCtx.Err() == nil
	f.writeLive = ctx.Err() == nil
	return 9, nil
}

func (f *fakePostBackend) insertPost(ctx context.Context, post models.Post) error {
	f.insertedPost = &post
	return nil
}

func (f *fakePostBackend) notifyNewPost(room *models.Room, author *models.User, caption string) {
	f.notified = true
}

// viewerRouter wires a handler behind a stand-in for the JWT middleware.
func viewerRouter(method, path string, viewer primitive.ObjectID, handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) { c.Set("userId", viewer.Hex()) })
	router.Handle(method, path, handler)
	return router
}

func photoUploadRequest(t *testing.T, url, caption string, photo []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("photo", "photo.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(photo); err != nil {
		t.Fatalf("write photo: %v", err)
	}
	if err := form.WriteField("caption", caption); err != nil {
		t.Fatalf("write caption: %v", err)
	}
	form.Close()

	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}

func TestCreatePostSuccess(t *testing.T) {
	author := &models.User{ID: primitive.NewObjectID(), Name: "Ana"}
	room := &models.Room{ID: primitive.NewObjectID(), Token: "abc12345", OwnerID: primitive.NewObjectID()}
	backend := &fakePostBackend{room: room, author: author}

	router := viewerRouter(http.MethodPost, "/api/post/:roomId", author.ID, func(c *gin.Context) {
		createPost(c, backend)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, photoUploadRequest(t, "/api/post/abc12345", "first!", []byte("tiny-photo")))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if backend.insertedPost == nil {
		t.Fatal("expected a post to be recorded")
	}
	if backend.insertedPost.Seq != 9 {
		t.Errorf("seq = %d, want 9", backend.insertedPost.Seq)
	}
	if backend.insertedPost.RoomID != room.ID {
		t.Error("post not attached to the room")
	}
	if backend.insertedPost.AuthorID != author.ID {
		t.Error("post not attributed to the uploader")
	}
	if backend.insertedPost.FileID != "drive-file-1" {
		t.Errorf("fileId = %q", backend.insertedPost.FileID)
	}
	if !bytes.Equal(backend.uploaded, []byte("tiny-photo")) {
		t.Error("small photo must be uploaded unchanged")
	}
	if backend.insertedPost.Caption != "first!" {
		t.Errorf("caption = %q", backend.insertedPost.Caption)
	}
	if !backend.notified {
		t.Error("expected room members to be notified")
	}
}

func TestCreatePostWritesOutliveLookupContext(t *testing.T) {
	author := &models.User{ID: primitive.NewObjectID(), Name: "Ana"}
	room := &models.Room{ID: primitive.NewObjectID(), Token: "abc12345", OwnerID: primitive.NewObjectID()}
	backend := &fakePostBackend{room: room, author: author}

	router := viewerRouter(http.MethodPost, "/api/post/:roomId", author.ID, func(c *gin.Context) {
		createPost(c, backend)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, photoUploadRequest(t, "/api/post/abc12345", "", []byte("tiny-photo")))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	// The lookup context must be released before the upload; the writes run
	// under their own deadline so a slow upload cannot exhaust it.
	if backend.lookupLive {
		t.Error("lookup context still live during the post-upload writes")
	}
	if !backend.writeLive {
		t.Error("post-upload writes got an expired context")
	}
}

func TestCreatePostRoomNotFound(t *testing.T) {
	backend := &fakePostBackend{}

	router := viewerRouter(http.MethodPost, "/api/post/:roomId", primitive.NewObjectID(), func(c *gin.Context) {
		createPost(c, backend)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, photoUploadRequest(t, "/api/post/nosuch", "", []byte("x")))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestCreatePostMissingPhoto(t *testing.T) {
	author := &models.User{ID: primitive.NewObjectID()}
	room := &models.Room{ID: primitive.NewObjectID(), Token: "abc12345"}
	backend := &fakePostBackend{room: room, author: author}

	router := viewerRouter(http.MethodPost, "/api/post/:roomId", author.ID, func(c *gin.Context) {
		createPost(c, backend)
	})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	form.WriteField("caption", "no photo here")
	form.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/post/abc12345", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if backend.insertedPost != nil {
		t.Error("no post must be recorded without a photo")
	}
}

func TestCreatePostAuthExpired(t *testing.T) {
	author := &models.User{ID: primitive.NewObjectID()}
	room := &models.Room{ID: primitive.NewObjectID(), Token: "abc12345"}
	backend := &fakePostBackend{room: room, author: author, uploadErr: drive.ErrAuthExpired}

	router := viewerRouter(http.MethodPost, "/api/post/:roomId", author.ID, func(c *gin.Context) {
		createPost(c, backend)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, photoUploadRequest(t, "/api/post/abc12345", "", []byte("x")))

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
	if backend.insertedPost != nil {
		t.Error("no post must be recorded when the upload is refused")
	}
}

type fakePostRemover struct {
	post    *models.Post
	room    *models.Room
	removed bool
}

func (f *fakePostRemover) postBySeq(ctx context.Context, seq int64) (*models.Post, error) {
	if f.post == nil || f.post.Seq != seq {
		return nil, errNotFound
	}
	return f.post, nil
}

func (f *fakePostRemover) roomByID(ctx context.Context, id primitive.ObjectID) (*models.Room, error) {
	if f.room == nil || f.room.ID != id {
		return nil, errNotFound
	}
	return f.room, nil
}

func (f *fakePostRemover) removePost(ctx context.Context, id primitive.ObjectID) error {
	f.removed = true
	return nil
}

func deletePostAs(viewer primitive.ObjectID, backend postRemover, url string) *httptest.ResponseRecorder {
	router := viewerRouter(http.MethodDelete, "/api/delete/:postId", viewer, func(c *gin.Context) {
		deletePost(c, backend)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, url, nil))
	return w
}

func newRemoverFixture() (*fakePostRemover, primitive.ObjectID, primitive.ObjectID) {
	authorID := primitive.NewObjectID()
	ownerID := primitive.NewObjectID()
	room := &models.Room{ID: primitive.NewObjectID(), Token: "abc12345", OwnerID: ownerID}
	post := &models.Post{ID: primitive.NewObjectID(), Seq: 7, RoomID: room.ID, AuthorID: authorID}
	return &fakePostRemover{post: post, room: room}, authorID, ownerID
}

func TestDeletePostStrangerForbidden(t *testing.T) {
	backend, _, _ := newRemoverFixture()

	w := deletePostAs(primitive.NewObjectID(), backend, "/api/delete/7")

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
	if backend.removed {
		t.Error("the post must stay persisted when a stranger asks")
	}
}

func TestDeletePostAuthorAllowed(t *testing.T) {
	backend, authorID, _ := newRemoverFixture()

	w := deletePostAs(authorID, backend, "/api/delete/7")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !backend.removed {
		t.Error("expected the post to be removed")
	}
}

func TestDeletePostRoomOwnerAllowed(t *testing.T) {
	backend, _, ownerID := newRemoverFixture()

	w := deletePostAs(ownerID, backend, "/api/delete/7")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !backend.removed {
		t.Error("expected the post to be removed")
	}
}

func TestDeletePostUnknown(t *testing.T) {
	backend, authorID, _ := newRemoverFixture()

	w := deletePostAs(authorID, backend, "/api/delete/999")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if backend.removed {
		t.Error("nothing must be removed for an unknown post")
	}
}

func TestDeletePostBadID(t *testing.T) {
	backend, authorID, _ := newRemoverFixture()

	w := deletePostAs(authorID, backend, "/api/delete/notanumber")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestUploadFilename(t *testing.T) {
	name := uploadFilename("image/jpeg")
	if !strings.HasSuffix(name, ".jpg") {
		t.Errorf("expected a .jpg extension, got %q", name)
	}

	name = uploadFilename("application/x-unknown-thing")
	if !strings.HasSuffix(name, ".bin") {
		t.Errorf("expected .bin fallback, got %q", name)
	}
}
