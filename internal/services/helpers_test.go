package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nuevpro/ventas/internal/cache"
	"github.com/nuevpro/ventas/internal/events"
	"github.com/nuevpro/ventas/internal/providers/llm"
	"github.com/nuevpro/ventas/internal/providers/tts"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/voices"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// testEnv wires the services over an in-memory database.
type testEnv struct {
	db        *gorm.DB
	log       *logrus.Logger
	bus       *events.MemoryBus
	cache     *cache.MemoryCache
	llm       *fakeLLM
	scenarios pgrepo.ScenarioRepository
	sessions  SessionService
	evals     EvaluationService
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	log := quietLogger()
	scenarios := pgrepo.NewScenarioRepo(db)
	sessions := NewSessionService(pgrepo.NewSessionRepo(db), scenarios, voices.NewSelector(), log)
	f := &fakeLLM{}
	return &testEnv{
		db:        db,
		log:       log,
		bus:       events.NewMemoryBus(),
		cache:     cache.NewMemoryCache(),
		llm:       f,
		scenarios: scenarios,
		sessions:  sessions,
		evals:     NewEvaluationService(sessions, scenarios, pgrepo.NewEvaluationRepo(db), f, log),
	}
}

type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	chunks  []string
	err     error
	reqs    []llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", llm.ErrEmptyResponse
	}
	out := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return out, nil
}

func (f *fakeLLM) StreamAnswer(_ context.Context, req llm.Request) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	chunks := append([]string(nil), f.chunks...)
	failure := f.err
	f.mu.Unlock()

	out := make(chan string, len(chunks))
	errs := make(chan error, 1)
	for _, c := range chunks {
		out <- c
	}
	close(out)
	errs <- failure
	close(errs)
	return out, errs
}

func (f *fakeLLM) Model() string { return "fake-model" }
func (f *fakeLLM) Close() error  { return nil }

func (f *fakeLLM) requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.reqs...)
}

type fakeTTS struct {
	mu   sync.Mutex
	reqs []tts.Request
	err  error
}

func (f *fakeTTS) Synthesize(_ context.Context, req tts.Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("ID3-audio"), nil
}

func (f *fakeTTS) Close() error { return nil }

type fakeSTT struct {
	text string
	conf float64
	err  error
	lang string
}

func (f *fakeSTT) Transcribe(_ context.Context, _ []byte, language, _ string) (string, float64, error) {
	f.lang = language
	return f.text, f.conf, f.err
}

func (f *fakeSTT) Close() error { return nil }

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	err     error
}

func newFakeUploader() *fakeUploader { return &fakeUploader{objects: map[string][]byte{}} }

func (u *fakeUploader) Upload(_ context.Context, objectName, _ string, r io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[objectName] = b
	return "https://storage.test/" + objectName, nil
}

func (u *fakeUploader) Delete(_ context.Context, objectName string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deleted = append(u.deleted, objectName)
	return nil
}

func ptr[T any](v T) *T { return &v }
