package httpserver

import (
	"net/http"

	"chatcore/internal/service"
)

// credentials is the body of both register and login. Email is only read
// on register.
type credentials struct {
	Username   string  `json:"username"`
	Email      *string `json:"email,omitempty"`
	Password   string  `json:"password"`
	RememberMe bool    `json:"remember_me"`
}

func (c credentials) login() service.LoginInput {
	return service.LoginInput{Username: c.Username, Password: c.Password, RememberMe: c.RememberMe}
}

// handleRegister creates the account and answers with a session for it,
// so a client can open /ws right away.
//
// @Summary      Register
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body credentials true "Account"
// @Success      201  {object}  service.TokenResponse
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /auth/register [post]
func handleRegister(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if !decodeBody(w, r, &req) {
			return
		}
		in := service.RegisterInput{Username: req.Username, Email: req.Email, Password: req.Password}
		if _, err := authSvc.Register(r.Context(), in); err != nil {
			writeError(w, err)
			return
		}
		session, err := authSvc.Login(r.Context(), req.login())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, session)
	}
}

// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body credentials true "Credentials"
// @Success      200  {object}  service.TokenResponse
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /auth/login [post]
func handleLogin(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if !decodeBody(w, r, &req) {
			return
		}
		session, err := authSvc.Login(r.Context(), req.login())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// handleLogout clears the stored presence of the caller. Open sockets are
// left to close on their own.
//
// @Summary      Logout
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Router       /auth/logout [post]
func handleLogout(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		if err := authSvc.Logout(r.Context(), user.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Current user
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  domain.User
// @Router       /auth/me [get]
func handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if user, ok := requireUser(w, r); ok {
			writeJSON(w, http.StatusOK, user)
		}
	}
}
