package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/shalteor/bplog/internal/db"
	"github.com/shalteor/bplog/internal/middleware"
	"github.com/shalteor/bplog/internal/services"
)

// HandleRegisterPage implements GET /register
func (s *Server) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register.html", pageData{})
}

// HandleRegister implements POST /register
func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		middleware.SetFlash(w, msgMissingCredentials)
		redirect(w, r, "/register")
		return
	}

	_, err := s.accounts.Register(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	switch {
	case errors.Is(err, services.ErrUsernameTaken):
		middleware.SetFlash(w, msgUsernameTaken)
		redirect(w, r, "/register")
	case errors.Is(err, services.ErrInvalidInput):
		middleware.SetFlash(w, msgMissingCredentials)
		redirect(w, r, "/register")
	case err != nil:
		s.logger.Error("registration failed", zap.Error(err))
		middleware.SetFlash(w, msgInternal)
		redirect(w, r, "/register")
	default:
		middleware.SetFlash(w, msgRegistered)
		redirect(w, r, middleware.LoginPath)
	}
}

// HandleLoginPage implements GET /login
func (s *Server) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login.html", pageData{})
}

// HandleLogin implements POST /login
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		middleware.SetFlash(w, msgInvalidCredentials)
		redirect(w, r, middleware.LoginPath)
		return
	}

	user, err := s.accounts.Login(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if errors.Is(err, services.ErrInvalidCredentials) {
		middleware.SetFlash(w, msgInvalidCredentials)
		redirect(w, r, middleware.LoginPath)
		return
	}
	if err != nil {
		s.logger.Error("login failed", zap.Error(err))
		middleware.SetFlash(w, msgInternal)
		redirect(w, r, middleware.LoginPath)
		return
	}

	if err := s.sessions.SetSession(w, user.ID); err != nil {
		s.internalError(w, r, "failed to start session", err)
		return
	}
	s.logger.Info("user logged in", zap.Int64("user_id", user.ID))
	redirect(w, r, "/")
}

// HandleLogout implements GET /logout
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.ClearSession(w)
	middleware.SetFlash(w, msgLoggedOut)
	redirect(w, r, middleware.LoginPath)
}

// HandleDeleteUser implements POST /delete_user/{userID}
func (s *Server) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	callerID, _ := middleware.GetUserIDFromContext(r.Context())

	targetID, ok := idParam(r, "userID")
	if !ok {
		middleware.SetFlash(w, msgUserNotFound)
		redirect(w, r, "/")
		return
	}

	err := s.accounts.DeleteUser(r.Context(), callerID, targetID)
	switch {
	case errors.Is(err, services.ErrNotAuthorized):
		s.logger.Warn("non-admin attempted user deletion",
			zap.Int64("user_id", callerID),
			zap.Int64("target_id", targetID),
		)
		middleware.SetFlash(w, msgNotAuthorized)
	case errors.Is(err, services.ErrForbiddenSelfDelete):
		middleware.SetFlash(w, msgSelfDelete)
	case errors.Is(err, db.ErrUserNotFound):
		middleware.SetFlash(w, msgUserNotFound)
	case err != nil:
		s.logger.Error("failed to delete user", zap.Int64("target_id", targetID), zap.Error(err))
		middleware.SetFlash(w, msgInternal)
	default:
		middleware.SetFlash(w, msgUserDeleted)
	}

	redirect(w, r, "/")
}
