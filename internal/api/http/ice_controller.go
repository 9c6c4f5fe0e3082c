package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
)

// ICEController publishes the ICE servers peers should pass to their
// RTCPeerConnection.
type ICEController struct {
	servers []webrtc.ICEServer
}

func NewICEController(stunServers []string) *ICEController {
	servers := []webrtc.ICEServer{}
	if len(stunServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: append([]string{}, stunServers...)})
	}
	return &ICEController{servers: servers}
}

func (c *ICEController) ListServers(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"iceServers": c.servers})
}
