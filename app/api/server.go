package api

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/wokeometro/app/feed"
	"github.com/lysyi3m/wokeometro/app/review"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, adminPIN string) *gin.Engine {
	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, "+AdminPINHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, adminPIN)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, adminPIN string) {
	r.GET(feed.FeedPath, handler.GetReviewedFeed)
	r.GET("/health", handler.GetHealth)

	api := r.Group("/api")
	{
		api.GET("/search", handler.Search)
		api.GET("/titles/:id", handler.GetTitle)
		api.GET("/flags", handler.ListFlags)
		api.POST("/score/preview", handler.PreviewScore)

		// The PIN travels in the body for review updates.
		api.POST("/review", handler.ApplyReview)

		admin := api.Group("")
		admin.Use(adminMiddleware(adminPIN))
		{
			admin.GET("/titles/:id/reviews", handler.ListTitleReviews)
		}
	}

	if adminPIN == "" {
		slog.Warn("ADMIN_PIN not set, review endpoints will reject every request")
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "Wokeómetro",
			"version":     handler.version,
			"description": "Catálogo de películas y series con puntuación de carga ideológica",
			"endpoints": map[string]string{
				"search":  "/api/search?q=<texto>&type=movie|series|all&reviewed=1&limit=<n>",
				"title":   "/api/titles/<id>",
				"flags":   "/api/flags",
				"preview": "/api/score/preview (POST)",
				"review":  "/api/review (POST, pin in body)",
				"history": "/api/titles/<id>/reviews (requires " + AdminPINHeader + " header)",
				"feed":    feed.FeedPath,
				"health":  "/health",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// adminMiddleware guards read-only admin routes with the editor PIN passed in
// the X-Admin-Pin header.
func adminMiddleware(adminPIN string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminPIN == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": review.ErrPINNotConfigured.Error()})
			return
		}

		provided := c.GetHeader(AdminPINHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(adminPIN)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": review.ErrInvalidPIN.Error()})
			return
		}

		c.Next()
	}
}
