package routes

import (
	"time"

	"photoroom/handlers"
	"photoroom/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(app *handlers.App) *gin.Engine {
	router := gin.Default()

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"message": "Photoroom API is running",
			"time":    time.Now().Unix(),
		})
	})

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:8080", "http://127.0.0.1:8080", "http://localhost:5500", "http://127.0.0.1:5500", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Google OAuth login
	router.GET("/api/google/auth-url", app.GoogleAuthURL)
	router.GET("/api/google/callback", app.GoogleCallback)

	// Image proxy; browsers load these from <img> tags, no session attached
	router.GET("/cdn/:fileId", app.ServeCDN)

	router.GET("/api/vapid-public-key", app.GetVapidPublicKey)

	protected := router.Group("/api")
	protected.Use(middleware.JWTAuth(app.JWTSecret))

	protected.GET("/me", app.GetMyProfile)
	protected.POST("/upload_avatar", app.UploadAvatar)

	mutating := middleware.RateLimit(60, time.Minute)
	protected.POST("/create_room", mutating, app.CreateRoom)
	protected.GET("/room/:token", app.GetRoom)
	protected.DELETE("/room/:token", mutating, app.DeleteRoom)

	protected.POST("/post/:roomId", mutating, app.CreatePost)
	protected.GET("/updates/:roomId", app.GetUpdates)
	protected.DELETE("/delete/:postId", mutating, app.DeletePost)

	protected.POST("/subscribe", app.SubscribePush)

	router.NoRoute(func(c *gin.Context) {
		if len(c.Request.URL.Path) >= 4 && c.Request.URL.Path[:4] == "/api" {
			c.JSON(404, gin.H{
				"error": "Endpoint not found",
				"path":  c.Request.URL.Path,
			})
			return
		}
		c.Next()
	})

	return router
}
