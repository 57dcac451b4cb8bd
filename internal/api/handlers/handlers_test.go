package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nuevpro/ventas/internal/api/middleware"
	"github.com/nuevpro/ventas/internal/cache"
	"github.com/nuevpro/ventas/internal/events"
	"github.com/nuevpro/ventas/internal/models"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/services"
	"github.com/nuevpro/ventas/internal/voices"
	"github.com/nuevpro/ventas/internal/workers"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeQueue struct {
	mu   sync.Mutex
	jobs []workers.AudioJob
}

func (q *fakeQueue) Enqueue(_ context.Context, job workers.AudioJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) queued() []workers.AudioJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]workers.AudioJob(nil), q.jobs...)
}

type testServer struct {
	router *gin.Engine
	bus    *events.MemoryBus
	queue  *fakeQueue
}

// testAuth stands in for JWTAuth: the caller is taken from X-User.
func testAuth(c *gin.Context) {
	if u := c.GetHeader("X-User"); u != "" {
		c.Set(middleware.CtxUserID, u)
		c.Set(middleware.CtxRole, string(models.DefaultRole))
	}
	c.Next()
}

func newTestServer(t *testing.T, wsOpts ...func(*WSDeps)) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, pgrepo.Migrate(db))

	log := logrus.New()
	log.SetOutput(io.Discard)
	bus := events.NewMemoryBus()
	c := cache.NewMemoryCache()

	scenarios := pgrepo.NewScenarioRepo(db)
	selector := voices.NewSelector()
	sessions := services.NewSessionService(pgrepo.NewSessionRepo(db), scenarios, selector, log)
	evals := services.NewEvaluationService(sessions, scenarios, pgrepo.NewEvaluationRepo(db), nil, log)
	knowledge := services.NewKnowledgeService(pgrepo.NewKnowledgeRepo(db), nil, nil, nil, nil, log)
	counterpart := services.NewCounterpartService(services.CounterpartDeps{Sessions: sessions, Scenarios: scenarios, Cache: c, Bus: bus, Log: log})
	game := services.NewGamificationService(pgrepo.NewStatsRepo(db), bus, log)
	challenges := services.NewChallengeService(pgrepo.NewChallengeRepo(db), game, bus, log)
	completion := services.NewCompletionService(sessions, evals, game, challenges, log)
	queue := &fakeQueue{}

	sh := NewSessionHandler(sessions, completion, evals)
	ch := NewConversationHandler(sessions, counterpart)
	kh := NewKnowledgeHandler(knowledge)
	vh := NewVoiceHandler(selector, services.NewSpeechService(nil, nil, "es-ES"))
	wsDeps := WSDeps{Sessions: sessions, Completion: completion, Queue: queue, Bus: bus, Log: log}
	for _, opt := range wsOpts {
		opt(&wsDeps)
	}
	ws := NewWSHandler(wsDeps)

	r := gin.New()
	r.Use(testAuth)
	r.POST("/sessions", sh.Start)
	r.GET("/sessions/:session_id", sh.Get)
	r.POST("/sessions/:session_id/messages", ch.SaveMessage)
	r.GET("/sessions/:session_id/messages", ch.Messages)
	r.POST("/sessions/:session_id/pause", sh.Pause)
	r.POST("/sessions/:session_id/end", sh.End)
	r.GET("/sessions/:session_id/evaluation", sh.Evaluation)
	r.GET("/knowledge", kh.List)
	r.POST("/knowledge/upload", kh.Upload)
	r.GET("/voices", vh.Catalog)
	r.POST("/speech/synthesize", vh.Synthesize)
	r.GET("/ws/sessions/:session_id", ws.SessionWS)

	return &testServer{router: r, bus: bus, queue: queue}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			r = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func startSession(t *testing.T, s *testServer, user string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/sessions", user, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode[map[string]any](t, rec)
	return out["id"].(string)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	user := uuid.NewString()
	id := startSession(t, s, user)

	rec := s.do(t, http.MethodPost, "/sessions/"+id+"/messages", user, gin.H{"content": "Buenos días, le llamo por su seguro"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decode[map[string]any](t, rec)
	assert.NotNil(t, saved["metrics"])
	assert.Nil(t, saved["reply"])

	// no model configured: the user turn is kept and the reply error is reported
	rec = s.do(t, http.MethodPost, "/sessions/"+id+"/messages", user, gin.H{"content": "¿Sigue ahí?", "reply": true})
	require.Equal(t, http.StatusCreated, rec.Code)
	saved = decode[map[string]any](t, rec)
	require.NotNil(t, saved["reply_error"])
	assert.Equal(t, "UNAVAILABLE", saved["reply_error"].(map[string]any)["code"])

	rec = s.do(t, http.MethodGet, "/sessions/"+id+"/messages", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[map[string][]models.ConversationTurn](t, rec)["messages"]
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(1), msgs[0].Seq)
	assert.Equal(t, int64(2), msgs[1].Seq)

	rec = s.do(t, http.MethodPost, "/sessions/"+id+"/pause", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paused", decode[map[string]any](t, rec)["status"])

	rec = s.do(t, http.MethodPost, "/sessions/"+id+"/end", user, gin.H{"score": 70})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ended := decode[map[string]any](t, rec)
	assert.Equal(t, float64(70), ended["score_applied"])
	assert.Equal(t, "ended", ended["session"].(map[string]any)["status"])

	rec = s.do(t, http.MethodGet, "/sessions/"+id+"/evaluation", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ev := decode[map[string]any](t, rec)
	assert.Equal(t, string(models.EvaluationUnavailable), ev["status"])
	assert.Nil(t, ev["overall_score"])

	rec = s.do(t, http.MethodPost, "/sessions/"+id+"/messages", user, gin.H{"content": "hola"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(t, http.MethodPost, "/sessions/"+id+"/end", user, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	s := newTestServer(t)
	user := uuid.NewString()

	for _, id := range []string{uuid.NewString(), "never-started"} {
		assert.NotPanics(t, func() {
			assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/sessions/"+id, user, nil).Code)
			assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/sessions/"+id+"/messages", user, nil).Code)
			assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/sessions/"+id+"/messages", user, gin.H{"content": "hola"}).Code)
			assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/sessions/"+id+"/end", user, nil).Code)
			assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/sessions/"+id+"/evaluation", user, nil).Code)
		})
	}
}

func TestOtherUserAndAnonymous(t *testing.T) {
	s := newTestServer(t)
	id := startSession(t, s, uuid.NewString())

	rec := s.do(t, http.MethodGet, "/sessions/"+id, uuid.NewString(), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", string(decode[APIError](t, rec).Code))
}

func TestMalformedBodies(t *testing.T) {
	s := newTestServer(t)
	user := uuid.NewString()
	id := startSession(t, s, user)

	rec := s.do(t, http.MethodPost, "/sessions/"+id+"/messages", user, `{"content":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", string(decode[APIError](t, rec).Code))

	rec = s.do(t, http.MethodPost, "/sessions/"+id+"/messages", user, gin.H{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/sessions", user, gin.H{"voice_id": "nobody"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartUpload(t *testing.T, name, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("category", "producto"))
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadDisallowedTypeCreatesNothing(t *testing.T) {
	s := newTestServer(t)
	user := uuid.NewString()

	body, ct := multipartUpload(t, "setup.exe", "application/x-msdownload", []byte("MZ\x90\x00binary"))
	req := httptest.NewRequest(http.MethodPost, "/knowledge/upload", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-User", user)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	results := decode[map[string][]services.UploadResult](t, rec)["results"]
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Document)
	require.NotNil(t, results[0].Error)

	rec = s.do(t, http.MethodGet, "/knowledge", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[map[string][]models.KnowledgeDocument](t, rec)["documents"])
}

func TestUploadTextDocument(t *testing.T) {
	s := newTestServer(t)
	user := uuid.NewString()

	body, ct := multipartUpload(t, "precios.txt", "text/plain", []byte("El plan básico cuesta 20 euros al mes."))
	req := httptest.NewRequest(http.MethodPost, "/knowledge/upload", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-User", user)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/knowledge?category=producto", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]models.KnowledgeDocument](t, rec)["documents"], 1)
}

func TestVoicesAndUnconfiguredSpeech(t *testing.T) {
	s := newTestServer(t)
	user := uuid.NewString()

	rec := s.do(t, http.MethodGet, "/voices", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lucia")

	rec = s.do(t, http.MethodPost, "/speech/synthesize", user, gin.H{"text": "Hola", "voice_id": "lucia"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		if m["type"] == typ {
			return m
		}
	}
}

func TestLiveSessionSocket(t *testing.T) {
	s := newTestServer(t)
	user := uuid.NewString()
	id := startSession(t, s, user)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + id
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"X-User": {user}})
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(gin.H{"type": "ping"}))
	readUntil(t, conn, "pong")

	require.NoError(t, conn.WriteJSON(gin.H{"type": "text", "chunk_index": 1, "content": "Buenos días"}))
	st := readUntil(t, conn, "status")
	assert.Equal(t, "queued", st["status"])
	jobs := s.queue.queued()
	require.Len(t, jobs, 1)
	assert.Equal(t, "Buenos días", jobs[0].Text)
	assert.Equal(t, id, jobs[0].SessionID)

	require.NoError(t, conn.WriteJSON(gin.H{"type": "text", "chunk_index": 0, "content": "x"}))
	e := readUntil(t, conn, "error")
	assert.Equal(t, "INVALID_ARGUMENT", e["code"])

	require.NoError(t, conn.WriteJSON(gin.H{"type": "end_session", "score": 55}))
	done := readUntil(t, conn, "session_ended")
	result := done["result"].(map[string]any)
	assert.Equal(t, float64(55), result["score_applied"])
}

func TestSocketRejectsEndedSession(t *testing.T) {
	s := newTestServer(t)
	user := uuid.NewString()
	id := startSession(t, s, user)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/sessions/"+id+"/end", user, gin.H{"evaluate": false}).Code)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + id
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"X-User": {user}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func dialSession(t *testing.T, srv *httptest.Server, user, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + id
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"X-User": {user}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSocketFailedPauseLeavesClockRunning(t *testing.T) {
	s := newTestServer(t)
	user := uuid.NewString()
	id := startSession(t, s, user)

	srv := httptest.NewServer(s.router)
	defer srv.Close()
	conn := dialSession(t, srv, user, id)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/sessions/"+id+"/end", user, gin.H{"evaluate": false}).Code)

	require.NoError(t, conn.WriteJSON(gin.H{"type": "pause"}))
	e := readUntil(t, conn, "error")
	assert.Equal(t, "CONFLICT", e["code"])

	require.NoError(t, conn.WriteJSON(gin.H{"type": "text", "chunk_index": 1, "content": "Sigo aquí"}))
	st := readUntil(t, conn, "status")
	assert.Equal(t, "queued", st["status"])
}

func TestSocketPingsIdleClient(t *testing.T) {
	s := newTestServer(t, func(d *WSDeps) { d.PingInterval = 50 * time.Millisecond })
	user := uuid.NewString()
	id := startSession(t, s, user)

	srv := httptest.NewServer(s.router)
	defer srv.Close()
	conn := dialSession(t, srv, user, id)

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(5 * time.Second):
		t.Fatal("server sent no ping")
	}
}
