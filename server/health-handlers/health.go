package health

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jrschumacher/authsync/internal/config"
	"github.com/jrschumacher/authsync/internal/httputil"
	"github.com/jrschumacher/authsync/internal/svrlib"
	"github.com/jrschumacher/authsync/pkg/auth/session"
)

// SessionSource reports the session the daemon is keeping fresh.
type SessionSource interface {
	Session() *session.Session
}

type HealthRouter struct {
	*svrlib.Router
	sessions SessionSource
	now      func() time.Time
}

// RegisterRoutes registers all health check routes on the given mux
func RegisterRoutes(mux *http.ServeMux, baseRoute string, cfg *config.Config, sessions SessionSource) {
	router := &HealthRouter{
		Router:   svrlib.NewRouter(mux, baseRoute, cfg),
		sessions: sessions,
		now:      time.Now,
	}
	router.HandleFunc("/healthz", router.HealthzHandler)
	router.HandleFunc("/readyz", router.ReadyzHandler)
	router.HandleFunc("/statusz", router.StatuszHandler)
}

// HealthzHandler responds to /healthz requests for health checks
func (rt *HealthRouter) HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "ok")
}

// ReadyzHandler reports ready while a session with an unexpired access token is held
func (rt *HealthRouter) ReadyzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	s := rt.sessions.Session()
	switch {
	case s == nil:
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "no session")
	case s.ExpiresWithin(rt.now(), 0):
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "session expired")
	default:
		fmt.Fprintln(w, "ok")
	}
}

// Status is the token-free session summary served on /statusz.
type Status struct {
	State     string `json:"state"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	ExpiresIn int64  `json:"expires_in,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
}

// StatuszHandler reports the held session without exposing its tokens.
func (rt *HealthRouter) StatuszHandler(w http.ResponseWriter, _ *http.Request) {
	s := rt.sessions.Session()
	if s == nil {
		httputil.WriteJSON(w, http.StatusOK, Status{State: session.StateSignedOut.String()})
		return
	}

	st := Status{State: session.StateSignedIn.String()}
	if exp := s.Expiry(); !exp.IsZero() {
		st.ExpiresAt = exp.Unix()
		st.ExpiresIn = max(int64(exp.Sub(rt.now()).Seconds()), 0)
	}
	if s.User != nil {
		st.UserID = s.User.ID
		st.Email = s.User.Email
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}
