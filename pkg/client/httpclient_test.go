package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/check", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Trace"))
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	var out struct {
		Success bool `json:"success"`
	}
	c := NewJSONClient(srv.URL+"/", time.Second)
	err := c.PostJSON(context.Background(), "/check", map[string]string{"a": "b"}, &out, http.Header{"X-Trace": {"yes"}})

	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestJSONClient_StatusError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"message field", http.StatusBadGateway, `{"message":"upstream down"}`, "upstream down"},
		{"error field", http.StatusForbidden, `{"error":"nope"}`, "nope"},
		{"code field", http.StatusConflict, `{"code":"CONFLICT"}`, "CONFLICT"},
		{"not json", http.StatusInternalServerError, `oops`, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewJSONClient(srv.URL, time.Second).PostJSON(context.Background(), "/", struct{}{}, nil, nil)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, tt.wantMsg, se.Message)
		})
	}
}
