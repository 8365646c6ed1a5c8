package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/agencycal/calib/pkg/auth"
	"github.com/agencycal/calib/pkg/store"
	"github.com/agencycal/calib/pkg/types"
	"github.com/agencycal/calib/pkg/version"
)

func (s *Server) getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, types.VersionResponse{Version: version.Version, GitCommit: version.GitCommit})
}

func (s *Server) register(c *gin.Context) {
	var req types.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	role := auth.RoleStaff
	if req.Role != "" {
		r, err := auth.ParseRole(req.Role)
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
		role = r
	}

	ctx := c.Request.Context()
	caller, authenticated := sessionFrom(c)
	callerIsAdmin := authenticated && caller.IsAdmin()

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	u := &store.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         role.String(),
	}

	// The first admin bootstraps the system; afterwards only admins add
	// admins. With registration disabled, non-admins can only register
	// while no admin exists. Both checks happen in the insert itself.
	guarded := !callerIsAdmin && (role == auth.RoleAdmin || !s.conf.AllowRegistration())
	if guarded {
		err = s.store.CreateUserIfNoRole(ctx, u, auth.RoleAdmin.String())
	} else {
		err = s.store.CreateUser(ctx, u)
	}
	switch {
	case err == nil:
	case errors.Is(err, store.ErrDuplicate):
		abort(c, http.StatusConflict, fmt.Errorf("email %s is already registered", u.Email))
		return
	case errors.Is(err, store.ErrRoleExists) && role == auth.RoleAdmin:
		abort(c, http.StatusForbidden, errors.New("only an admin can register another admin"))
		return
	case errors.Is(err, store.ErrRoleExists):
		abort(c, http.StatusForbidden, errors.New("registration is disabled"))
		return
	default:
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.WithFields(logrus.Fields{"email": u.Email, "role": u.Role}).Info("user registered")
	c.IndentedJSON(http.StatusCreated, userSession(u))
}

func (s *Server) login(c *gin.Context) {
	var req types.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	u, err := s.store.GetUserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			abort(c, http.StatusUnauthorized, auth.ErrInvalidCredentials)
			return
		}
		abort(c, http.StatusInternalServerError, err)
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		abort(c, http.StatusUnauthorized, auth.ErrInvalidCredentials)
		return
	}
	if req.Role != "" {
		r, err := auth.ParseRole(req.Role)
		if err != nil || r.String() != u.Role {
			abort(c, http.StatusUnauthorized, auth.ErrInvalidCredentials)
			return
		}
	}

	sess := userSession(u)
	token, exp, err := s.issuer().Issue(sess)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.WithField("email", u.Email).Info("user logged in")
	c.IndentedJSON(http.StatusOK, types.LoginResponse{AccessToken: token, ExpiresAt: exp.Unix(), User: sess})
}

func (s *Server) me(c *gin.Context) {
	sess, _ := sessionFrom(c)
	c.IndentedJSON(http.StatusOK, sess)
}

func userSession(u *store.User) auth.Session {
	return auth.Session{UserID: u.ID, Email: u.Email, Name: u.Name, Role: auth.Role(u.Role)}
}
