package rtc

import (
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/mivora/stagesync/internal/core"
)

// JoinInfo contains the credentials a participant needs to join the media
// room backing a session.
type JoinInfo struct {
	URL      string `json:"url"`
	Token    string `json:"token"`
	RoomName string `json:"room_name"`
	Identity string `json:"identity"`
}

// LiveKit mints media join tokens for session participants.
type LiveKit struct {
	apiKey    string
	apiSecret string
	wsURL     string
}

// NewLiveKit builds a token minter.
func NewLiveKit(apiKey, apiSecret, wsURL string) *LiveKit {
	return &LiveKit{apiKey: apiKey, apiSecret: apiSecret, wsURL: wsURL}
}

// RoomName derives the media room name for a session.
func (l *LiveKit) RoomName(sessionID string) string {
	return fmt.Sprintf("stagesync-%s", sessionID)
}

// JoinInfo creates join credentials for uid in the session's media room.
// Hosts get publish rights on every source.
func (l *LiveKit) JoinInfo(sessionID string, uid core.UID, name string, isHost bool) (*JoinInfo, error) {
	room := l.RoomName(sessionID)
	identity := fmt.Sprintf("uid-%d", uid)

	at := auth.NewAccessToken(l.apiKey, l.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	if isHost {
		grant.RoomAdmin = true
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(time.Hour)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &JoinInfo{
		URL:      l.wsURL,
		Token:    token,
		RoomName: room,
		Identity: identity,
	}, nil
}
