package busserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mivora/stagesync/internal/auth"
	"github.com/mivora/stagesync/internal/core"
	"github.com/mivora/stagesync/internal/rtc"
	"github.com/mivora/stagesync/internal/store"
)

// APIHandlers provides HTTP handlers for the bus REST endpoints.
type APIHandlers struct {
	jwt     *auth.JWTConfig
	store   store.Store
	livekit *rtc.LiveKit
	log     *zerolog.Logger
}

// NewAPIHandlers creates an API handlers instance. lk may be nil when no
// media backend is configured; the join endpoint then reports unavailable.
func NewAPIHandlers(jwtCfg *auth.JWTConfig, st store.Store, lk *rtc.LiveKit, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{jwt: jwtCfg, store: st, livekit: lk, log: logger}
}

// TokenRequest asks for a bus join token.
type TokenRequest struct {
	UID       int64  `json:"uid" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
	IsHost    bool   `json:"is_host"`
}

// TokenResponse carries the minted token.
type TokenResponse struct {
	Token string `json:"token"`
}

// BanRequest removes a participant from a session for a duration.
type BanRequest struct {
	UID             int64 `json:"uid" binding:"required"`
	DurationMinutes int   `json:"duration" binding:"required"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Token mints a bus join token.
// POST /api/token
func (h *APIHandlers) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid token request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := auth.GenerateToken(h.jwt, req.UID, req.SessionID, req.IsHost)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to generate token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// Pin returns the persisted last pin value of a session, so late joiners can
// fetch it out of band.
// GET /api/sessions/:id/pin
func (h *APIHandlers) Pin(c *gin.Context) {
	sessionID := c.Param("id")
	values, err := h.store.ChannelValues(c.Request.Context(), sessionID)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to load channel values")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	msg, ok := values[core.ChannelPinForEveryone]
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no pin value"})
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(msg.Payload))
}

// Ban records a session ban. Requires a host token for the session.
// POST /api/sessions/:id/ban
func (h *APIHandlers) Ban(c *gin.Context) {
	sessionID := c.Param("id")
	claims := mustClaims(c)
	if claims == nil || !claims.IsHost || claims.SessionID != sessionID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "host token for this session required"})
		return
	}

	var req BanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid ban request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	until := time.Now().Add(time.Duration(req.DurationMinutes) * time.Minute)
	if err := h.store.SaveBan(c.Request.Context(), sessionID, req.UID, until); err != nil {
		h.log.Error().Err(err).Int64("uid", req.UID).Msg("failed to save ban")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("session_id", sessionID).Int64("uid", req.UID).Int("duration_min", req.DurationMinutes).Msg("participant banned")
	c.Status(http.StatusNoContent)
}

// JoinRequest asks for media room credentials.
type JoinRequest struct {
	Name string `json:"name"`
}

// Join mints media room credentials for the authenticated participant.
// POST /api/sessions/:id/join
func (h *APIHandlers) Join(c *gin.Context) {
	sessionID := c.Param("id")
	claims := mustClaims(c)
	if claims == nil || claims.SessionID != sessionID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "token for this session required"})
		return
	}
	if h.livekit == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "no media backend configured"})
		return
	}

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid join request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	info, err := h.livekit.JoinInfo(sessionID, core.UID(claims.UID), req.Name, claims.IsHost)
	if err != nil {
		h.log.Error().Err(err).Int64("uid", claims.UID).Msg("failed to mint join info")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// Bans lists unexpired bans for a session.
// GET /api/sessions/:id/bans
func (h *APIHandlers) Bans(c *gin.Context) {
	sessionID := c.Param("id")
	uids, err := h.store.BannedUIDs(c.Request.Context(), sessionID, time.Now())
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to load bans")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if uids == nil {
		uids = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{"uids": uids})
}
