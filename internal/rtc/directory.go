package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mivora/stagesync/internal/core"
)

// Directory resolves participant display names from the backend user
// directory by role name. The session runs lookups fire-and-forget; they
// never block reconciliation.
type Directory struct {
	baseURL string
	client  *http.Client
}

// NewDirectory builds a directory client.
func NewDirectory(baseURL string) *Directory {
	return &Directory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type directoryUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NamesByRole fetches users holding the given role and maps their backend
// ids onto uids.
func (d *Directory) NamesByRole(ctx context.Context, role string) (map[core.UID]string, error) {
	endpoint := fmt.Sprintf("%s/users/by-role?roleName=%s", d.baseURL, url.QueryEscape(role))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory call: unexpected status %d", resp.StatusCode)
	}

	var users []directoryUser
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}

	names := make(map[core.UID]string, len(users))
	for _, user := range users {
		names[core.UID(user.ID)] = user.Name
	}
	return names, nil
}
