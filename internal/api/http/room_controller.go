package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/streamroom/internal/api/http/converter"
	"github.com/immxrtalbeast/streamroom/internal/domain"
	"github.com/immxrtalbeast/streamroom/internal/service"
	"github.com/immxrtalbeast/streamroom/lib/logger/sl"
)

type RoomController struct {
	rooms service.SignalingInteractor
	log   *slog.Logger
}

func NewRoomController(rooms service.SignalingInteractor, log *slog.Logger) *RoomController {
	if log == nil {
		log = slog.Default()
	}
	return &RoomController{
		rooms: rooms,
		log:   log,
	}
}

func (c *RoomController) CreateRoom(ctx *gin.Context) {
	type CreateRoomRequest struct {
		BroadcasterID string `json:"broadcasterId" binding:"required"`
		StreamID      string `json:"streamId" binding:"required"`
	}
	var req CreateRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "broadcasterId and streamId required", err)
		return
	}

	roomID, err := c.rooms.CreateRoom(ctx.Request.Context(), req.BroadcasterID, req.StreamID)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"roomId": roomID, "message": "Room created"})
}

func (c *RoomController) StoreBroadcasterOffer(ctx *gin.Context) {
	type StoreOfferRequest struct {
		BroadcasterID string `json:"broadcasterId" binding:"required"`
		SDP           string `json:"sdp" binding:"required"`
	}
	var req StoreOfferRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "broadcasterId and SDP required", err)
		return
	}

	roomID := ctx.Param("roomID")
	if err := c.rooms.StoreBroadcasterOffer(ctx.Request.Context(), roomID, req.BroadcasterID, req.SDP); err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "roomId": roomID})
}

func (c *RoomController) GetBroadcasterOffer(ctx *gin.Context) {
	broadcasterID := ctx.Query("broadcasterId")
	if broadcasterID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "broadcasterId query param required"})
		return
	}

	sdp, err := c.rooms.GetBroadcasterOffer(ctx.Request.Context(), ctx.Param("roomID"), broadcasterID)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"sdp": sdp})
}

func (c *RoomController) AddViewer(ctx *gin.Context) {
	type AddViewerRequest struct {
		ViewerID string `json:"viewerId" binding:"required"`
	}
	var req AddViewerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "viewerId required", err)
		return
	}

	if err := c.rooms.AddViewer(ctx.Request.Context(), ctx.Param("roomID"), req.ViewerID); err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"success": true, "viewerId": req.ViewerID})
}

func (c *RoomController) StoreViewerAnswer(ctx *gin.Context) {
	type StoreAnswerRequest struct {
		ViewerID string `json:"viewerId" binding:"required"`
		SDP      string `json:"sdp" binding:"required"`
	}
	var req StoreAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "viewerId and SDP required", err)
		return
	}

	if err := c.rooms.StoreViewerAnswer(ctx.Request.Context(), ctx.Param("roomID"), req.ViewerID, req.SDP); err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "viewerId": req.ViewerID})
}

func (c *RoomController) GetViewerAnswer(ctx *gin.Context) {
	viewerID := ctx.Query("viewerId")
	if viewerID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "viewerId query param required"})
		return
	}

	sdp, err := c.rooms.GetViewerAnswer(ctx.Request.Context(), ctx.Param("roomID"), viewerID)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"sdp": sdp})
}

func (c *RoomController) AddICECandidate(ctx *gin.Context) {
	type AddCandidateRequest struct {
		PeerID    string               `json:"peerId" binding:"required"`
		Candidate *domain.ICECandidate `json:"candidate" binding:"required"`
	}
	var req AddCandidateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "peerId and candidate required", err)
		return
	}
	if req.Candidate.Candidate == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "peerId and candidate required"})
		return
	}

	if err := c.rooms.AddICECandidate(ctx.Request.Context(), ctx.Param("roomID"), req.PeerID, *req.Candidate); err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"success": true})
}

func (c *RoomController) GetICECandidates(ctx *gin.Context) {
	peerID := ctx.Query("peerId")
	if peerID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "peerId query param required"})
		return
	}

	since := 0
	if raw := ctx.Query("since"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "since must be a non-negative integer"})
			return
		}
		since = n
	}

	candidates, err := c.rooms.GetICECandidates(ctx.Request.Context(), ctx.Param("roomID"), peerID, since)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"candidates": converter.CandidatesToApi(candidates)})
}

func (c *RoomController) GetRoom(ctx *gin.Context) {
	info, err := c.rooms.GetRoomInfo(ctx.Request.Context(), ctx.Param("roomID"))
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.RoomToApi(info))
}

func (c *RoomController) DeleteRoom(ctx *gin.Context) {
	roomID := ctx.Param("roomID")
	if err := c.rooms.CleanupRoom(ctx.Request.Context(), roomID); err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "roomId": roomID})
}

// fail translates a service error into its HTTP status. Server-side failures
// are logged and reported without internal details.
func (c *RoomController) fail(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRoomNotInitialized):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Room not initialized"})
	case errors.Is(err, domain.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "SDP not found"})
	case errors.Is(err, domain.ErrAlreadyInitialized):
		ctx.JSON(http.StatusConflict, gin.H{"error": "Room already exists"})
	case errors.Is(err, service.ErrRegistryClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
	default:
		c.log.Error("request failed",
			slog.String("method", ctx.Request.Method),
			slog.String("path", ctx.FullPath()),
			slog.String("room_id", ctx.Param("roomID")),
			sl.Err(err),
		)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func badRequest(ctx *gin.Context, msg string, err error) {
	ctx.JSON(http.StatusBadRequest, gin.H{"error": msg, "details": err.Error()})
}
