package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yourusername/quantopia/internal/dataset"
	"github.com/yourusername/quantopia/internal/metrics"
	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/task"
)

const controlSource = "api"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

func controlCtx(c *gin.Context) context.Context {
	return task.WithSource(c.Request.Context(), controlSource)
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.deps.Tasks.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if status := c.Query("status"); status != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if string(t.State.Status) == status {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var cfg models.TaskConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, err.Error())
		return
	}
	id, err := s.deps.Tasks.Create(controlCtx(c), cfg)
	if err != nil {
		s.fail(c, err)
		return
	}
	snap, err := s.deps.Tasks.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (s *Server) handleGetTask(c *gin.Context) {
	snap, err := s.deps.Tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handlePauseTask(c *gin.Context) {
	s.control(c, s.deps.Tasks.Pause)
}

func (s *Server) handleResumeTask(c *gin.Context) {
	s.control(c, s.deps.Tasks.Resume)
}

func (s *Server) handleStopTask(c *gin.Context) {
	s.control(c, s.deps.Tasks.Stop)
}

// control applies action and answers with the resulting snapshot
func (s *Server) control(c *gin.Context, action func(ctx context.Context, id string) error) {
	id := c.Param("id")
	if err := action(controlCtx(c), id); err != nil {
		s.fail(c, err)
		return
	}
	snap, err := s.deps.Tasks.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.deps.Tasks.Delete(controlCtx(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleExportTask saves a task's full price history as a dataset so it can be
// backtested
func (s *Server) handleExportTask(c *gin.Context) {
	if s.deps.History == nil {
		unavailable(c, "price history")
		return
	}
	if s.deps.Datasets == nil {
		unavailable(c, "dataset store")
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	snap, err := s.deps.Tasks.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	points, err := s.deps.History.ListPricePoints(ctx, id, 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(points) < 2 {
		badRequest(c, "task has fewer than two price points")
		return
	}

	meta, err := s.deps.Datasets.Save(dataset.Metadata{
		Source: dataset.SourceTask,
		Symbol: snap.State.Config.Symbol,
	}, points)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, meta)
}

// streamMessage is one frame of the snapshot stream
type streamMessage struct {
	Type     string         `json:"type"`
	Snapshot *task.Snapshot `json:"snapshot,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// handleStreamTask pushes the task snapshot over a websocket at the stream interval
// until the client goes away or the task reaches a terminal status
func (s *Server) handleStreamTask(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.deps.Tasks.Get(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).WithField("task_id", id).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()
	metrics.StreamOpened()
	defer metrics.StreamClosed()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go s.readPump(conn, cancel)

	ticker := time.NewTicker(s.cfg.StreamInterval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		snap, err := s.deps.Tasks.Get(ctx, id)
		if err != nil {
			msg := streamMessage{Type: "error", Error: err.Error()}
			if errors.Is(err, models.ErrNotFound) {
				msg.Type = "deleted"
			}
			s.writeFrame(conn, msg)
			s.closeStream(conn)
			return
		}
		msg := streamMessage{Type: "snapshot", Snapshot: snap}
		if err := s.writeFrame(conn, msg); err != nil {
			return
		}
		if snap.State.Status.IsTerminal() {
			s.closeStream(conn)
			return
		}

		if !waitTick(ctx, conn, ticker.C, ping.C) {
			return
		}
	}
}

// waitTick blocks until the next snapshot is due, keeping the connection alive with
// pings. It reports false once the stream should end.
func waitTick(ctx context.Context, conn *websocket.Conn, tick, ping <-chan time.Time) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-tick:
			return true
		case <-ping:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return false
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, msg streamMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.WithError(err).Debug("Stream write failed")
		return err
	}
	return nil
}

func (s *Server) closeStream(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// readPump drains client frames so control messages are processed and cancels the
// stream once the peer disconnects
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
