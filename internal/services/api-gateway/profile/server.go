// Package profile lets an authenticated user publish the contact details the
// e-mail notifier delivers to.
package profile

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/NordCoder/Taskboard/internal/domain/user"
	"github.com/NordCoder/Taskboard/internal/obs"
	"github.com/NordCoder/Taskboard/internal/services/api-gateway/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	log   *zap.Logger
	users user.Repo
}

func NewServer(log *zap.Logger, users user.Repo) *Server {
	return &Server{log: log.With(zap.String("component", "profile.http")), users: users}
}

func (s *Server) Register(g *gin.RouterGroup) {
	g.GET("/me", s.get)
	g.PUT("/me", s.put)
}

type putRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *Server) get(c *gin.Context) {
	u, err := s.users.GetByID(c.Request.Context(), auth.UserID(c))
	if errors.Is(err, user.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) put(c *gin.Context) {
	var in putRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is invalid"})
		return
	}

	u := &user.User{ID: auth.UserID(c), Email: addr.Address, Name: strings.TrimSpace(in.Name)}
	if err := s.users.Upsert(c.Request.Context(), u); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) fail(c *gin.Context, err error) {
	obs.WithTrace(c.Request.Context(), s.log).Error("profile request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
