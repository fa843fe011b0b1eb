package gateway

import (
	"crypto/subtle"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"relaygate/logger"
	"relaygate/model"
)

// Channels must reference a known resource class; arbitrary subjects are
// rejected before touching the bus.
var channelPattern = regexp.MustCompile(`^(users|threads|posts)\.[0-9]+$`)

func validChannel(channel string) bool {
	return channel == DefaultChannel || channelPattern.MatchString(channel)
}

type publishRequest struct {
	Channel string                 `json:"channel"`
	Payload map[string]interface{} `json:"payload"`
}

// HandleInternalPublish lets backend services inject events without
// holding a socket. Guarded by the static internal secret; the auth check
// runs before any request validation.
func (s *Server) HandleInternalPublish(c *gin.Context) {
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "missing bearer token"})
		return
	}
	token := strings.TrimSpace(authz[len("bearer "):])
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.internalSecret)) != 1 {
		c.JSON(http.StatusForbidden, gin.H{"detail": "invalid token"})
		return
	}

	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid body"})
		return
	}
	if !validChannel(req.Channel) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid channel"})
		return
	}

	ev, err := model.FromPayload(req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid event type"})
		return
	}

	if err := s.bus.Publish(req.Channel, ev); err != nil {
		logger.Errorf("[publish] bus publish failed channel=%s: %v", req.Channel, err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "publish failed"})
		return
	}

	// The bridge drops this gateway's own bus echo, so deliver to the
	// local sockets here.
	s.DeliverFromBus(req.Channel, ev)

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleHealth is the unauthenticated liveness probe.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "gateway_id": s.reg.GatewayID()})
}
