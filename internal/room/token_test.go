package room

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTokenProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"user_id"`
			RoomID string `json:"room_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user-7", req.UserID)
		assert.Equal(t, "meeting-9", req.RoomID)
		json.NewEncoder(w).Encode(Credential{Token: "signed", AppID: "meetkit-dev"})
	}))
	defer srv.Close()

	p := NewHTTPTokenProvider(srv.URL)
	cred, err := p.RoomToken(context.Background(), "user-7", "meeting-9")
	require.NoError(t, err)
	assert.Equal(t, "signed", cred.Token)
	assert.Equal(t, "meetkit-dev", cred.AppID)
}

func TestHTTPTokenProviderRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such room", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPTokenProvider(srv.URL).RoomToken(context.Background(), "u", "r")
	assert.Error(t, err)
}
