package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"SalongDriftSaas/api/auth"
	"SalongDriftSaas/api/constants"
)

type contextKey string

const SessionKey contextKey = "session"

// GetSessionFromCtx returns the validated session placed by the
// middleware, or nil when the request skipped it.
func GetSessionFromCtx(ctx context.Context) *auth.UserSession {
	if s, ok := ctx.Value(SessionKey).(*auth.UserSession); ok {
		return s
	}
	return nil
}

// extractUserID peeks user_id from the query string, a multipart form
// field or a JSON body. The body is restored so downstream handlers can
// decode it again.
func extractUserID(r *http.Request) string {
	if uid := strings.TrimSpace(r.URL.Query().Get("user_id")); uid != "" {
		return uid
	}
	ct := r.Header.Get(constants.ContentTypeHeader)
	if strings.HasPrefix(ct, constants.ContentTypeJSON) {
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			return ""
		}
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		var bodyMap map[string]interface{}
		if err := json.Unmarshal(bodyBytes, &bodyMap); err == nil {
			if uid, ok := bodyMap["user_id"].(string); ok {
				return strings.TrimSpace(uid)
			}
		}
		return ""
	}
	if strings.HasPrefix(ct, "multipart/form-data") {
		// The handler parses the form itself; multipart bodies cannot be
		// cheaply peeked and restored, so session checking stays in the
		// handler for uploads.
		return ""
	}
	return ""
}

// WithSessionValidation rejects requests without a live session before
// they reach a handler. Multipart uploads are passed through and validated
// by their handler after form parsing.
func WithSessionValidation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get(constants.ContentTypeHeader), "multipart/form-data") {
			next.ServeHTTP(w, r)
			return
		}
		userID := extractUserID(r)
		var session *auth.UserSession
		for _, s := range auth.GetActiveSessions() {
			if s.UserID == userID && s.IsLoggedIn {
				session = s
				break
			}
		}
		if session == nil {
			w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   constants.ErrPleaseLogin,
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), SessionKey, session)))
	})
}
