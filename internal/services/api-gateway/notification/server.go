package notification

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/NordCoder/Taskboard/internal/obs"
	"github.com/NordCoder/Taskboard/internal/services/api-gateway/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	log       *zap.Logger
	uc        *Usecase
	producers []string
}

func NewServer(log *zap.Logger, uc *Usecase) *Server {
	return &Server{log: log.With(zap.String("component", "notification.http")), uc: uc}
}

// WithProducers sets the service identities allowed to POST general and
// mention notifications into other users' mailboxes. Without any, the route
// answers 403 to every caller.
func (s *Server) WithProducers(ids ...string) *Server {
	s.producers = append([]string(nil), ids...)
	return s
}

// Register mounts the mailbox routes on g, which must already require auth.
// Mailbox routes act on the caller's own mailbox; POST is a producer route
// for internal services and is limited to the configured identities.
func (s *Server) Register(g *gin.RouterGroup) {
	n := g.Group("/notifications")
	n.GET("", s.list)
	n.GET("/:id", s.get)
	n.PUT("/read-all", s.markAllRead)
	n.PUT("/:id/read", s.markRead)
	n.DELETE("/:id", s.delete)
	n.POST("", auth.RequireSubject(s.producers...), s.send)
}

func (s *Server) mapErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notification.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
	case errors.Is(err, notification.ErrInvalidType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification type"})
	case errors.Is(err, notification.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, notification.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notification storage unavailable"})
	default:
		obs.WithTrace(c.Request.Context(), s.log).Error("notification request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// queryInt reads an optional integer parameter no smaller than least.
func queryInt(c *gin.Context, key string, def, least int) (int, bool) {
	raw, present := c.GetQuery(key)
	if !present {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < least {
		return 0, false
	}
	return v, true
}

func (s *Server) list(c *gin.Context) {
	limit, ok := queryInt(c, "limit", notification.DefaultLimit, 1)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	offset, ok := queryInt(c, "offset", 0, 0)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	page, err := s.uc.List(c.Request.Context(), auth.UserID(c), limit, offset)
	if err != nil {
		s.mapErr(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) get(c *gin.Context) {
	n, err := s.uc.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		s.mapErr(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *Server) markRead(c *gin.Context) {
	if err := s.uc.MarkRead(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		s.mapErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) markAllRead(c *gin.Context) {
	n, err := s.uc.MarkAllRead(c.Request.Context(), auth.UserID(c))
	if err != nil {
		s.mapErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (s *Server) delete(c *gin.Context) {
	if err := s.uc.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		s.mapErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) send(c *gin.Context) {
	var in SendInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	n, err := s.uc.Send(c.Request.Context(), auth.UserID(c), in)
	if err != nil {
		s.mapErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}
