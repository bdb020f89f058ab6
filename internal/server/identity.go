package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/claude/liftlog/internal/models"
	"tailscale.com/client/tailscale/apitype"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	userInfoKey
)

const (
	devLogin       = "local"
	devDisplayName = "Local Dev User"
)

// UserInfo identifies the caller of a request.
type UserInfo struct {
	UserID      int    `json:"user_id,omitempty"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// UserResolver maps a login to a user ID, creating the user on first sight.
type UserResolver interface {
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)
}

// WhoIser resolves the tailnet identity behind a remote address.
type WhoIser interface {
	WhoIs(ctx context.Context, remoteAddr string) (*apitype.WhoIsResponse, error)
}

// DevIdentity attributes every request to the local dev user (ID 1).
func DevIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), 1, UserInfo{Login: devLogin, DisplayName: devDisplayName})))
	})
}

// identify attributes the request to a user. On a tailnet the user is the
// peer's login; otherwise it is the login header, falling back to the dev
// user. Without a user resolver every request is the dev user.
func (s *Server) identify(next http.Handler) http.Handler {
	dev := DevIdentity(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var info UserInfo
		switch {
		case s.whois != nil:
			who, err := s.whois.WhoIs(r.Context(), r.RemoteAddr)
			if err != nil || who.UserProfile == nil {
				s.log.Warn("tailnet identity lookup failed", "remote_addr", r.RemoteAddr, "error", err)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown tailnet peer"})
				return
			}
			info = UserInfo{Login: who.UserProfile.LoginName, DisplayName: who.UserProfile.DisplayName}
		case s.users == nil:
			dev.ServeHTTP(w, r)
			return
		default:
			info = UserInfo{Login: r.Header.Get(models.LoginHeader)}
			if info.Login == "" {
				info = UserInfo{Login: devLogin, DisplayName: devDisplayName}
			}
		}

		id, err := s.users.GetOrCreateUser(r.Context(), info.Login, info.DisplayName)
		if err != nil {
			s.log.Error("resolving user", "login", info.Login, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "resolving user failed"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), id, info)))
	})
}

func withUser(ctx context.Context, id int, info UserInfo) context.Context {
	ctx = context.WithValue(ctx, userIDKey, id)
	return context.WithValue(ctx, userInfoKey, info)
}

// userIDFromContext returns the caller's user ID, or 1 if no identity
// middleware ran.
func userIDFromContext(r *http.Request) int {
	if id, ok := r.Context().Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// userInfoFromContext returns the caller's identity, or the dev user if no
// identity middleware ran.
func userInfoFromContext(r *http.Request) UserInfo {
	if info, ok := r.Context().Value(userInfoKey).(UserInfo); ok {
		return info
	}
	return UserInfo{Login: devLogin, DisplayName: devDisplayName}
}

// mustUserID returns the caller's user ID, writing 401 if the request was
// not attributed to anyone.
func mustUserID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, ok := r.Context().Value(userIDKey).(int)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no user identity"})
		return 0, false
	}
	return id, true
}

// MemoryUsers is a UserResolver for running without a database. The dev
// login always maps to user 1.
type MemoryUsers struct {
	mu  sync.Mutex
	ids map[string]int
}

// NewMemoryUsers creates an empty resolver.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{ids: map[string]int{devLogin: 1}}
}

// GetOrCreateUser implements UserResolver.
func (m *MemoryUsers) GetOrCreateUser(_ context.Context, login, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.ids[login]; ok {
		return id, nil
	}
	id := len(m.ids) + 1
	m.ids[login] = id
	return id, nil
}
