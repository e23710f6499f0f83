package authz

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"waitgate/pkg/client"
	"waitgate/pkg/session"
)

const HasPermissionPath = "/admin/has-permission"

type hasPermissionRequest struct {
	UserID      string              `json:"userId"`
	Permissions map[string][]string `json:"permissions"`
}

type hasPermissionResponse struct {
	Success bool `json:"success"`
}

// HTTPEvaluator asks the admin service whether a user holds a permission set.
type HTTPEvaluator struct {
	client *client.JSONClient
}

func NewHTTPEvaluator(baseURL string, timeout time.Duration) *HTTPEvaluator {
	return &HTTPEvaluator{client: client.NewJSONClient(baseURL, timeout)}
}

func (e *HTTPEvaluator) HasPermission(ctx context.Context, s *session.Session, permissions map[string][]string) (bool, error) {
	header := http.Header{}
	if s.Token != "" {
		header.Set("Authorization", "Bearer "+s.Token)
	}

	var out hasPermissionResponse
	err := e.client.PostJSON(ctx, HasPermissionPath, hasPermissionRequest{
		UserID:      s.UserID,
		Permissions: permissions,
	}, &out, header)
	if err != nil {
		return false, fmt.Errorf("permission check failed: %w", err)
	}
	return out.Success, nil
}
