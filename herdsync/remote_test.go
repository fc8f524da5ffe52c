package herdsync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeAPIError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "detail string",
			body: `{"detail": "Not found."}`,
			want: "Not found.",
		},
		{
			name: "field errors flattened and sorted",
			body: `{"tag_id": ["animal with this tag id already exists."], "birth_date": ["Date has wrong format."]}`,
			want: "birth date: Date has wrong format. tag id: animal with this tag id already exists.",
		},
		{
			name: "non-field errors without prefix",
			body: `{"non_field_errors": ["Unable to log in with provided credentials."]}`,
			want: "Unable to log in with provided credentials.",
		},
		{
			name: "single string value",
			body: `{"tag_id": "required"}`,
			want: "tag id: required",
		},
		{
			name: "non-JSON body passed through",
			body: "bad gateway",
			want: "bad gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decodeAPIError(http.StatusBadRequest, []byte(tt.body))
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
			require.Equal(t, tt.want, apiErr.Message)
		})
	}
}

func TestRemoteClientUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
	}))
	defer server.Close()

	client := NewRemoteClient(server.URL, func(ctx context.Context) (string, error) {
		return "stale-token", nil
	})
	var loggedOut bool
	client.OnUnauthorized = func() { loggedOut = true }

	_, err := client.Animals(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	require.True(t, loggedOut, "401 must invalidate the session exactly once")
}

func TestRemoteClientTokenFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should be sent without a token")
	}))
	defer server.Close()

	boom := errors.New("keychain locked")
	client := NewRemoteClient(server.URL, func(ctx context.Context) (string, error) {
		return "", boom
	})

	_, err := client.Animals(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestRemoteClientTrimsTrailingSlash(t *testing.T) {
	client := NewRemoteClient("https://farm.example.com/api/", nil)
	require.Equal(t, "https://farm.example.com/api", client.BaseURL)
}
