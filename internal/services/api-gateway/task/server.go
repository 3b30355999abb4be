package task

import (
	"errors"
	"net/http"

	"github.com/NordCoder/Taskboard/internal/domain/task"
	"github.com/NordCoder/Taskboard/internal/obs"
	"github.com/NordCoder/Taskboard/internal/services/api-gateway/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	log *zap.Logger
	uc  *Usecase
}

func NewServer(log *zap.Logger, uc *Usecase) *Server {
	return &Server{log: log.With(zap.String("component", "task.http")), uc: uc}
}

func (s *Server) Register(g *gin.RouterGroup) {
	t := g.Group("/tasks")
	t.POST("", s.create)
	t.GET("/:id", s.get)
	t.PUT("/:id", s.update)
	t.DELETE("/:id", s.delete)
}

func (s *Server) mapErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, task.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, task.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "task was modified concurrently, retry"})
	default:
		obs.WithTrace(c.Request.Context(), s.log).Error("task request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) create(c *gin.Context) {
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	uid := auth.UserID(c)
	s.log.Debug("create task", zap.String("uid", uid))

	t, err := s.uc.Create(c.Request.Context(), uid, in)
	if err != nil {
		s.mapErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) get(c *gin.Context) {
	t, err := s.uc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.mapErr(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) update(c *gin.Context) {
	var p Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	t, err := s.uc.Update(c.Request.Context(), auth.UserID(c), c.Param("id"), p)
	if err != nil {
		s.mapErr(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) delete(c *gin.Context) {
	if err := s.uc.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		s.mapErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
