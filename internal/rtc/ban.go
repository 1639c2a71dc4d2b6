package rtc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mivora/stagesync/internal/core"
)

// BanClient calls the room service's ban endpoint. A banned participant is
// removed from the room for the given duration, scoped to the host meeting
// id of the current session.
type BanClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewBanClient builds a client against the room service. token is attached
// as a bearer credential.
func NewBanClient(baseURL, token string) *BanClient {
	return &BanClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type banRequest struct {
	UID             int64  `json:"uid"`
	DurationMinutes int    `json:"duration"`
	HostMeetingID   string `json:"host_meeting_id"`
}

// Ban removes uid from the room for durationMinutes.
func (b *BanClient) Ban(ctx context.Context, uid core.UID, durationMinutes int, hostMeetingID string) error {
	body, err := json.Marshal(banRequest{
		UID:             int64(uid),
		DurationMinutes: durationMinutes,
		HostMeetingID:   hostMeetingID,
	})
	if err != nil {
		return fmt.Errorf("encode ban request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/ban", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ban request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("ban call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ban call: unexpected status %d", resp.StatusCode)
	}
	return nil
}
