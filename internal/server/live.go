package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sharedtodo/internal/todo"
)

const (
	liveWriteTimeout = 5 * time.Second
	liveReadLimit    = 512
)

// handleLiveCategories streams the caller's personal categories.
func (s *Server) handleLiveCategories(c *gin.Context) {
	stream, err := s.categories.SubscribePersonal(c.Request.Context(), identity(c).UID)
	if err != nil {
		s.fail(c, err)
		return
	}
	serveStream(s, c, "categories", stream)
}

// handleLiveShared streams the caller's shared categories.
func (s *Server) handleLiveShared(c *gin.Context) {
	stream, err := s.categories.SubscribeShared(c.Request.Context(), identity(c).UID)
	if err != nil {
		s.fail(c, err)
		return
	}
	serveStream(s, c, "categories", stream)
}

// handleLiveTasks streams a category's tasks in the mode its kind calls for.
func (s *Server) handleLiveTasks(c *gin.Context) {
	stream, err := s.tasks.WatchTasks(c.Request.Context(), identity(c).UID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	serveStream(s, c, "tasks", stream)
}

// serveStream upgrades the request and writes every snapshot of stream as
// {key: snapshot} until the client goes away. The subscription is opened
// before the upgrade so access errors still get a plain HTTP status.
func serveStream[T any](s *Server, c *gin.Context, key string, stream *todo.Stream[T]) {
	defer stream.Close()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Info("websocket upgrade failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// The client only sends control frames; reading drives pong handling
	// and notices disconnects.
	gone := make(chan struct{})
	conn.SetReadLimit(liveReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(2 * s.pingPeriod))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * s.pingPeriod))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.pingPeriod)
	defer ping.Stop()

	for {
		select {
		case snapshot, ok := <-stream.Updates():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(liveWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(gin.H{key: snapshot}); err != nil {
				s.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
