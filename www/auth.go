package www

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"

	"github.com/sahilp2023/agrocyle-sub001/assignment"
	"github.com/sahilp2023/agrocyle-sub001/store"
)

const sessionName = "residuehub-session"

// Identity headers set by the gateway in front of the operator and farmer apps.
const (
	headerRole = "X-Principal-Role"
	headerID   = "X-Principal-ID"
)

type principalKey struct{}

func newSessionStore(secret string) *sessions.CookieStore {
	if secret == "" {
		secret = "residuehub-default-secret-change-me"
	}
	s := sessions.NewCookieStore([]byte(secret))
	s.Options.HttpOnly = true
	s.Options.Secure = false
	s.Options.SameSite = http.SameSiteLaxMode
	return s
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (h *Handlers) isAuthenticated(r *http.Request) bool {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return false
	}
	auth, ok := session.Values["authenticated"].(bool)
	return ok && auth
}

// requireAuth admits hub staff with a session only.
func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.isAuthenticated(r) {
			h.jsonError(w, "login required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withPrincipal resolves who is calling. Hub staff come from the session;
// operators and requesters come from the gateway identity headers.
func (h *Handlers) withPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := h.sessionPrincipal(r)
		if !ok {
			p, ok = headerPrincipal(r)
		}
		if !ok {
			h.jsonError(w, "no principal", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func principalFrom(r *http.Request) assignment.Principal {
	p, _ := r.Context().Value(principalKey{}).(assignment.Principal)
	return p
}

func (h *Handlers) sessionPrincipal(r *http.Request) (assignment.Principal, bool) {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return assignment.Principal{}, false
	}
	if auth, _ := session.Values["authenticated"].(bool); !auth {
		return assignment.Principal{}, false
	}
	id, _ := session.Values["user_id"].(int64)
	hubID, _ := session.Values["hub_id"].(int64)
	return assignment.Principal{Role: assignment.RoleHubManager, ID: id, HubID: hubID}, true
}

func headerPrincipal(r *http.Request) (assignment.Principal, bool) {
	role := assignment.Role(strings.TrimSpace(r.Header.Get(headerRole)))
	if role != assignment.RoleOperator && role != assignment.RoleRequester {
		return assignment.Principal{}, false
	}
	id, err := strconv.ParseInt(r.Header.Get(headerID), 10, 64)
	if err != nil || id <= 0 {
		return assignment.Principal{}, false
	}
	return assignment.Principal{Role: role, ID: id}, true
}

type loginForm struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			h.jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		form.Username = r.FormValue("username")
		form.Password = r.FormValue("password")
	}

	user, err := h.engine.DB().GetAdminUser(r.Context(), form.Username)
	if err != nil || !checkPassword(user.PasswordHash, form.Password) {
		h.jsonError(w, "invalid username or password", http.StatusUnauthorized)
		return
	}

	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = true
	session.Values["username"] = user.Username
	session.Values["user_id"] = user.ID
	var hubID int64
	if user.HubID != nil {
		hubID = *user.HubID
	}
	session.Values["hub_id"] = hubID
	if err := session.Save(r, w); err != nil {
		h.jsonError(w, "session error", http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, map[string]any{"username": user.Username, "hub_id": hubID})
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = false
	session.Options.MaxAge = -1
	session.Save(r, w)
	h.jsonOK(w, map[string]string{"status": "logged out"})
}

func (h *Handlers) getUsername(r *http.Request) string {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return ""
	}
	username, _ := session.Values["username"].(string)
	return username
}

func (h *Handlers) ensureDefaultAdmin(ctx context.Context, db *store.DB) {
	exists, err := db.AdminUserExists(ctx)
	if err != nil || exists {
		return
	}
	hash, err := hashPassword("admin")
	if err != nil {
		return
	}
	if err := db.CreateAdminUser(ctx, "admin", hash, nil); err != nil {
		log.Printf("www: create default admin: %v", err)
		return
	}
	log.Printf("www: created default admin account (change its password)")
}
