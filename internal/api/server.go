// Package api exposes the ingestion surface: signals and alerts in, trade
// and position state out, plus a websocket event stream.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"signal-core/internal/events"
	"signal-core/internal/followup"
	"signal-core/internal/router"
	"signal-core/pkg/db"
)

// Server wires HTTP endpoints around the router and the event bus.
type Server struct {
	Router    *gin.Engine
	Signals   *router.Router
	Followup  *followup.Processor
	Bus       *events.Bus
	DB        *db.Database
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to callers.
type SystemMeta struct {
	DryRun  bool
	Venues  []string
	Version string
}

// NewServer builds the HTTP server with the full middleware stack.
func NewServer(signals *router.Router, fp *followup.Processor, bus *events.Bus, database *db.Database, jwtSecret string, meta SystemMeta) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Signals:   signals,
		Followup:  fp,
		Bus:       bus,
		DB:        database,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.POST("/auth/token", s.issueToken)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/signals", s.postSignal)
			protected.POST("/alerts", s.postAlert)
			protected.POST("/futures", s.postFutures)
			protected.POST("/futures/:id/close", s.closeFutures)
			protected.GET("/trades", s.getTrades)
			protected.GET("/positions", s.getPositions)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"dry_run": s.Meta.DryRun,
		"venues":  s.Meta.Venues,
		"version": s.Meta.Version,
	})
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
