package httpapi

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"distributor.app/internal/audit"
	"distributor.app/internal/auth"
	"distributor.app/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLoginForm accepts the OAuth2 password form; username may carry an
// email address.
func (a *API) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, auth.KindInvalidInput, "invalid form body")
		return
	}
	user := strings.TrimSpace(r.PostForm.Get("username"))
	creds := auth.Credentials{Password: r.PostForm.Get("password")}
	if strings.Contains(user, "@") {
		creds.Email = user
	} else {
		creds.Username = user
	}
	a.login(w, r, creds)
}

func (a *API) handleLoginJSON(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	a.login(w, r, auth.Credentials{Email: req.Email, Username: req.Username, Password: req.Password})
}

func (a *API) login(w http.ResponseWriter, r *http.Request, creds auth.Credentials) {
	token, account, err := a.auth.Login(r.Context(), creds)
	if err != nil {
		kind := auth.KindOf(err)
		obs.ObserveLogin(kind)
		if kind != auth.KindInternal {
			_ = audit.LogEvent(r.Context(), audit.EventLoginFailed, logrus.Fields{
				"kind":      kind,
				"remote_ip": clientIP(r),
			})
		}
		a.writeAuthError(w, r, err)
		return
	}
	obs.ObserveLogin("success")
	_ = audit.LogEvent(r.Context(), audit.EventLogin, logrus.Fields{
		"account_id": account.ID,
		"remote_ip":  clientIP(r),
	})
	writeJSON(w, http.StatusOK, token)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.accounts.Profile(principal(r)))
}

// handleLogout revokes the bearer token placed by withBearer. The session is
// not resolved first so that an already revoked token gets a friendly answer.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())
	already, err := a.auth.Logout(r.Context(), token)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	obs.ObserveRevocation(already)
	if already {
		writeJSON(w, http.StatusOK, messageResponse{Message: "Token is already blacklisted"})
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventLogout, nil)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Successfully logged out"})
}
