// Package debugapi exposes a read-only HTTP and websocket surface over the
// Session Manager's state: session listing, per-session queue status, a
// liveness probe, and a live event feed for a dashboard. It carries no
// write endpoints — every mutation happens through a transport adapter.
package debugapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/baton-gateway/baton/internal/eventbus"
	"github.com/baton-gateway/baton/internal/gateway"
	"github.com/baton-gateway/baton/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Server is the debug API's gin router plus its live-event hub.
type Server struct {
	router  *gin.Engine
	hub     *hub
	manager *gateway.Manager
	logger  *logging.Logger
	http    *http.Server
}

// New builds the debug API. bus feeds the websocket hub; manager backs the
// session-listing and per-session queue-status routes.
func New(manager *gateway.Manager, bus eventbus.Bus, logger *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(Recovery(logger), RequestLogger(logger), ErrorHandler(logger), CORS())

	s := &Server{
		router:  router,
		hub:     newHub(bus, logger),
		manager: manager,
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/sessions", s.handleListSessions)
	s.router.GET("/sessions/:id/queue", s.handleSessionQueue)
	s.router.GET("/ws", s.handleWebsocket)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": s.hub.clientCount()})
}

func (s *Server) handleListSessions(c *gin.Context) {
	summaries := s.manager.ListSessions()
	out := make([]gin.H, len(summaries))
	for i, sess := range summaries {
		out[i] = gin.H{
			"id":           sess.ID,
			"user_id":      sess.UserID,
			"context_id":   sess.ContextID,
			"project_path": sess.ProjectPath,
			"repo_name":    sess.RepoName,
			"state":        sess.State,
			"created_at":   sess.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) handleSessionQueue(c *gin.Context) {
	status, ok := s.manager.SessionByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "not_found", "message": "no such session"}})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := newWSClient(c.Request.RemoteAddr, conn, s.hub, s.logger)
	s.hub.register(client)
	go client.writePump()
	client.readPump()
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.closeAll(shutdownCtx)
		return s.http.Shutdown(shutdownCtx)
	}
}
