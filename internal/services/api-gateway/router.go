// Package apigateway assembles the public HTTP surface: the mailbox and task
// routes and the live notification channel, all behind bearer auth.
package apigateway

import (
	"context"
	"net/http"
	"time"

	domainauth "github.com/NordCoder/Taskboard/internal/domain/auth"
	"github.com/NordCoder/Taskboard/internal/services/api-gateway/auth"
	"github.com/NordCoder/Taskboard/internal/services/api-gateway/notification"
	"github.com/NordCoder/Taskboard/internal/services/api-gateway/profile"
	"github.com/NordCoder/Taskboard/internal/services/api-gateway/task"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Deps struct {
	Log           *zap.Logger
	Verifier      domainauth.Verifier
	Notifications *notification.Server
	Tasks         *task.Server
	Profile       *profile.Server
	Channel       http.Handler
	Health        func(context.Context) error
	CORSOrigins   []string
}

func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "http"))

	r := gin.New()
	r.Use(Recovery(log), AccessLog(log))
	if len(d.CORSOrigins) > 0 {
		r.Use(CORS(d.CORSOrigins))
	}

	r.GET("/healthz", func(c *gin.Context) {
		if d.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
			defer cancel()
			if err := d.Health(ctx); err != nil {
				c.String(http.StatusServiceUnavailable, "unhealthy: store")
				return
			}
		}
		c.String(http.StatusOK, "ok")
	})

	// the channel authenticates before upgrading and answers 401 itself
	if d.Channel != nil {
		r.GET("/api/v1/ws", gin.WrapH(d.Channel))
	}

	api := r.Group("/api/v1", auth.Middleware(d.Verifier))
	if d.Notifications != nil {
		d.Notifications.Register(api)
	}
	if d.Tasks != nil {
		d.Tasks.Register(api)
	}
	if d.Profile != nil {
		d.Profile.Register(api)
	}
	return r
}
