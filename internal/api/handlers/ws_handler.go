package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nuevpro/ventas/internal/events"
	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/services"
	"github.com/nuevpro/ventas/internal/timer"
	"github.com/nuevpro/ventas/internal/utils"
	"github.com/nuevpro/ventas/internal/workers"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	// pings go out before the peer's read deadline would expire
	wsPingInterval = wsReadTimeout * 9 / 10
)

type WSHandler struct {
	sessions   services.SessionService
	completion services.CompletionService
	buffers    services.BufferService
	queue      workers.AudioQueue
	bus        events.Bus
	log        *logrus.Logger
	upgrader   websocket.Upgrader
	pingEvery  time.Duration
}

type WSDeps struct {
	Sessions   services.SessionService
	Completion services.CompletionService
	Buffers    services.BufferService
	Queue      workers.AudioQueue
	Bus        events.Bus
	Log        *logrus.Logger
	// AllowedOrigins restricts the handshake; empty allows any origin.
	AllowedOrigins []string
	// PingInterval defaults to 54s.
	PingInterval time.Duration
}

func NewWSHandler(d WSDeps) *WSHandler {
	if d.Log == nil {
		d.Log = logrus.New()
	}
	if d.PingInterval <= 0 {
		d.PingInterval = wsPingInterval
	}
	origins := d.AllowedOrigins
	return &WSHandler{
		sessions:   d.Sessions,
		completion: d.Completion,
		buffers:    d.Buffers,
		queue:      d.Queue,
		bus:        d.Bus,
		log:        d.Log,
		pingEvery:  d.PingInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				o := r.Header.Get("Origin")
				return len(origins) == 0 || o == "" || slices.Contains(origins, o)
			},
		},
	}
}

type wsClientMsg struct {
	Type            string   `json:"type"` // audio_chunk|text|pause|resume|end_session|ping
	ChunkIndex      int64    `json:"chunk_index"`
	AudioBase64     string   `json:"audio_base64"`
	AudioURL        string   `json:"audio_url"`
	Content         string   `json:"content"`
	Language        string   `json:"language"`
	Format          string   `json:"format"`
	RelativeSeconds *float64 `json:"relative_seconds"`
	Synthesize      bool     `json:"synthesize"`
	Score           *int     `json:"score"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

func (w *wsConn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.writeText(b)
}

func (w *wsConn) writeError(err error) error {
	body := errorBody(err)
	return w.writeJSON(gin.H{"type": "error", "code": body.Code, "message": body.Message})
}

func (h *WSHandler) SessionWS(c *gin.Context) {
	const op = "WSHandler.SessionWS"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")

	sess, err := h.sessions.Get(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.Ended() {
		writeError(c, utils.E(utils.CodeConflict, op, "session already ended", utils.ErrSessionEnded))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already answered
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	// the request context ends with the hijacked handshake; the socket owns its own
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := h.log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID})

	sub, err := h.bus.Subscribe(ctx,
		events.SessionResponseChannel(sessionID),
		events.SessionStatusChannel(sessionID),
		events.UserChannel(userID),
	)
	if err != nil {
		log.WithError(err).Error("subscribe failed")
		_ = wc.writeError(utils.E(utils.CodeUnavailable, op, "live channel unavailable", err))
		return
	}
	defer sub.Close()

	clock := h.sessions.Timer(sess)
	go clock.Run(ctx, func(sec int64) {
		_ = wc.writeJSON(gin.H{"type": "timer", "elapsed_seconds": sec, "elapsed": timer.FormatDuration(sec)})
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = wc.writeError(utils.E(utils.CodeInvalidArgument, op, "invalid json", err))
				continue
			}
			if done := h.dispatch(ctx, wc, clock, userID, sessionID, msg); done {
				return
			}
		}
	}()

	pings := time.NewTicker(h.pingEvery)
	defer pings.Stop()

	// bus -> socket
	for {
		select {
		case <-readDone:
			return
		case <-pings.C:
			if err := wc.ping(); err != nil {
				log.WithError(err).Debug("ping failed")
				return
			}
		case m, ok := <-sub.Messages():
			if !ok {
				return
			}
			if werr := wc.writeText([]byte(m)); werr != nil {
				return
			}
		}
	}
}

// dispatch handles one client message and reports whether the socket should close.
func (h *WSHandler) dispatch(ctx context.Context, wc *wsConn, clock *timer.Timer, userID, sessionID string, msg wsClientMsg) bool {
	const op = "WSHandler.SessionWS"
	statusCh := events.SessionStatusChannel(sessionID)

	switch msg.Type {
	case "audio_chunk", "text":
		if msg.ChunkIndex <= 0 {
			_ = wc.writeError(utils.E(utils.CodeInvalidArgument, op, "chunk_index must be > 0", nil))
			return false
		}
		if clock.Paused() {
			_ = wc.writeError(utils.E(utils.CodeConflict, op, "session is paused", nil))
			return false
		}
		rel := float64(clock.ElapsedSeconds())
		if msg.RelativeSeconds != nil && *msg.RelativeSeconds >= 0 {
			rel = *msg.RelativeSeconds
		}
		job := workers.AudioJob{
			UserID:          userID,
			SessionID:       sessionID,
			ChunkIndex:      msg.ChunkIndex,
			Language:        msg.Language,
			Format:          msg.Format,
			RelativeSeconds: rel,
			Synthesize:      msg.Synthesize,
		}

		if msg.Type == "text" {
			if msg.Content == "" {
				_ = wc.writeError(utils.E(utils.CodeInvalidArgument, op, "content is required", nil))
				return false
			}
			job.Text = msg.Content
		} else {
			if msg.AudioBase64 == "" && msg.AudioURL == "" {
				_ = wc.writeError(utils.E(utils.CodeInvalidArgument, op, "audio_base64 or audio_url required", nil))
				return false
			}
			job.AudioBase64, job.AudioURL = msg.AudioBase64, msg.AudioURL
			if h.buffers != nil {
				in := services.ChunkInput{
					UserID: userID, SessionID: sessionID, ChunkIndex: msg.ChunkIndex,
					Language: msg.Language, RelativeSeconds: rel,
				}
				if msg.AudioBase64 != "" {
					in.AudioBase64 = &msg.AudioBase64
				}
				if msg.AudioURL != "" {
					in.AudioURL = &msg.AudioURL
				}
				if _, err := h.buffers.InsertAudioChunk(ctx, in); err != nil {
					_ = wc.writeError(err)
					return false
				}
			}
		}

		if err := h.queue.Enqueue(ctx, job); err != nil {
			_ = wc.writeError(utils.E(utils.CodeUnavailable, op, "failed to enqueue audio", err))
			return false
		}
		_ = h.bus.Publish(ctx, statusCh, events.NewStatus("queued", "chunk queued", msg.ChunkIndex))

	case "pause", "resume":
		var st *services.TimerState
		var err error
		if msg.Type == "pause" {
			st, err = h.sessions.Pause(ctx, userID, sessionID)
		} else {
			st, err = h.sessions.Resume(ctx, userID, sessionID)
		}
		if err != nil {
			_ = wc.writeError(err)
			return false
		}
		if msg.Type == "pause" {
			clock.Pause()
		} else {
			clock.Resume()
		}
		_ = h.bus.Publish(ctx, statusCh, events.NewStatus(string(st.Status), st.Elapsed, 0))

	case "end_session":
		res, err := h.completion.End(ctx, userID, sessionID, services.EndOptions{
			Summary:  models.SessionSummary{Score: msg.Score},
			Evaluate: true,
		})
		if err != nil {
			_ = wc.writeError(err)
			return false
		}
		_ = wc.writeJSON(gin.H{"type": "session_ended", "result": res})
		return true

	case "ping":
		_ = wc.writeJSON(gin.H{"type": "pong"})

	default:
		_ = wc.writeError(utils.E(utils.CodeInvalidArgument, op, "unknown message type", nil))
	}
	return false
}
