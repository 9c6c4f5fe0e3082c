package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterOptions struct {
	AllowOrigins []string
	// RequestsPerSecond enables per-IP rate limiting when positive.
	RequestsPerSecond float64
	Burst             int
}

func SetupRouter(roomController *RoomController, iceController *ICEController, log *slog.Logger, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(requestLoggerMiddleware(log))

	config := cors.DefaultConfig()
	if len(opts.AllowOrigins) == 0 || (len(opts.AllowOrigins) == 1 && opts.AllowOrigins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = opts.AllowOrigins
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{
		"Content-Type",
		"Origin",
		"Accept",
		requestIDHeader,
	}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"}
	config.ExposeHeaders = []string{requestIDHeader}
	router.Use(cors.New(config))

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	if opts.RequestsPerSecond > 0 {
		api.Use(rateLimitMiddleware(newIPRateLimiter(opts.RequestsPerSecond, opts.Burst)))
	}

	if iceController != nil {
		api.GET("/ice-servers", iceController.ListServers)
	}

	if roomController != nil {
		rooms := api.Group("/rooms")
		rooms.POST("", roomController.CreateRoom)
		rooms.GET("/:roomID", roomController.GetRoom)
		rooms.DELETE("/:roomID", roomController.DeleteRoom)
		rooms.POST("/:roomID/broadcaster-sdp", roomController.StoreBroadcasterOffer)
		rooms.GET("/:roomID/broadcaster-sdp", roomController.GetBroadcasterOffer)
		rooms.POST("/:roomID/viewers", roomController.AddViewer)
		rooms.POST("/:roomID/viewer-sdp", roomController.StoreViewerAnswer)
		rooms.GET("/:roomID/viewer-sdp", roomController.GetViewerAnswer)
		rooms.POST("/:roomID/ice", roomController.AddICECandidate)
		rooms.GET("/:roomID/ice", roomController.GetICECandidates)
	}

	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return router
}
