package handlers

import (
	"log"
	"net/http"
	"os"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
)

// UploadAvatar stores a profile picture on Cloudinary and saves the URL on
// the user. Avatars are small and public, so they skip the Drive pipeline.
func (a *App) UploadAvatar(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	avatarFile, _, err := c.Request.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing avatar"})
		return
	}
	defer avatarFile.Close()

	cld, err := cloudinary.NewFromURL(os.Getenv("CLOUDINARY_URL"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cloudinary configuration error"})
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	uploadResult, err := cld.Upload.Upload(ctx, avatarFile, uploader.UploadParams{
		Folder:         "photoroom/avatars",
		PublicID:       userID.Hex(),
		Transformation: "c_limit,w_400,h_400,q_auto",
	})
	if err != nil {
		log.Printf("[UploadAvatar] cloudinary upload failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload avatar"})
		return
	}

	_, err = a.Store.Users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"avatar": uploadResult.SecureURL}},
	)
	if err != nil {
		log.Printf("[UploadAvatar] failed to save avatar url: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"url": uploadResult.SecureURL})
}
