// Package room owns one video-conferencing room membership: authenticate in,
// publish the local stream, and track remote participants' streams.
package room

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Credential is a signed room-entry grant issued by the token service.
type Credential struct {
	Token string `json:"token"`
	AppID string `json:"app_id"`
}

// TokenProvider issues one room-entry credential per Join.
type TokenProvider interface {
	RoomToken(ctx context.Context, userID, roomID string) (Credential, error)
}

// HTTPTokenProvider calls the backend token service.
type HTTPTokenProvider struct {
	url    string
	client *http.Client
}

func NewHTTPTokenProvider(url string) *HTTPTokenProvider {
	return &HTTPTokenProvider{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HTTPTokenProvider) RoomToken(ctx context.Context, userID, roomID string) (Credential, error) {
	body, err := json.Marshal(struct {
		UserID string `json:"user_id"`
		RoomID string `json:"room_id"`
	}{UserID: userID, RoomID: roomID})
	if err != nil {
		return Credential{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Credential{}, fmt.Errorf("token service returned %s", resp.Status)
	}

	var cred Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return Credential{}, fmt.Errorf("decode token response: %w", err)
	}
	return cred, nil
}
