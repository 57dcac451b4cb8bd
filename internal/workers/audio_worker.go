package workers

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nuevpro/ventas/internal/events"
	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/services"
)

const (
	DefaultStream = "audio:stream"
	DefaultGroup  = "audio-workers"
)

// AudioJob is one user utterance of a live session: recorded audio to
// transcribe, or Text when the client already has the words.
type AudioJob struct {
	UserID          string
	SessionID       string
	ChunkIndex      int64
	Language        string
	Format          string
	RelativeSeconds float64
	AudioBase64     string
	AudioURL        string
	Text            string
	Synthesize      bool
}

func (j AudioJob) values() map[string]any {
	v := map[string]any{
		"user_id":          j.UserID,
		"session_id":       j.SessionID,
		"chunk_index":      strconv.FormatInt(j.ChunkIndex, 10),
		"relative_seconds": strconv.FormatFloat(j.RelativeSeconds, 'f', -1, 64),
		"synthesize":       strconv.FormatBool(j.Synthesize),
		"ts_unix":          strconv.FormatInt(time.Now().UTC().Unix(), 10),
	}
	for k, s := range map[string]string{
		"language":     j.Language,
		"format":       j.Format,
		"audio_base64": j.AudioBase64,
		"audio_url":    j.AudioURL,
		"text":         j.Text,
	} {
		if s != "" {
			v[k] = s
		}
	}
	return v
}

var errBadJob = errors.New("audio job without session_id, user_id or chunk_index")

func jobFromValues(vals map[string]any) (AudioJob, error) {
	get := func(k string) string {
		s, _ := vals[k].(string)
		return s
	}
	j := AudioJob{
		UserID:      get("user_id"),
		SessionID:   get("session_id"),
		Language:    get("language"),
		Format:      get("format"),
		AudioBase64: get("audio_base64"),
		AudioURL:    get("audio_url"),
		Text:        get("text"),
	}
	j.ChunkIndex, _ = strconv.ParseInt(get("chunk_index"), 10, 64)
	j.RelativeSeconds, _ = strconv.ParseFloat(get("relative_seconds"), 64)
	j.Synthesize, _ = strconv.ParseBool(get("synthesize"))
	if j.SessionID == "" || j.UserID == "" || j.ChunkIndex <= 0 {
		return j, errBadJob
	}
	return j, nil
}

type AudioQueue interface {
	Enqueue(ctx context.Context, job AudioJob) error
}

// RedisAudioQueue appends jobs to a Redis stream consumed by AudioWorkerPool.
type RedisAudioQueue struct {
	rdb    *redis.Client
	stream string
}

func NewRedisAudioQueue(rdb *redis.Client, stream string) *RedisAudioQueue {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisAudioQueue{rdb: rdb, stream: stream}
}

func (q *RedisAudioQueue) Enqueue(ctx context.Context, job AudioJob) error {
	return q.rdb.XAdd(ctx, &redis.XAddArgs{Stream: q.stream, Values: job.values()}).Err()
}

// AudioWorkerPool reads the stream with a consumer group and hands every job to
// the processor.
type AudioWorkerPool struct {
	Redis      *redis.Client
	Processor  *AudioProcessor
	NumWorkers int
	Logger     *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *AudioWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Processor == nil {
		return errors.New("AudioWorkerPool missing dependency: Redis/Processor must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultStream
	}
	if p.Group == "" {
		p.Group = DefaultGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 5
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	if err := p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err(); err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}

	for i := 0; i < p.NumWorkers; i++ {
		go p.runConsumer(ctx, p.ConsumerPrefix+"-"+strconv.Itoa(i+1))
	}
	p.Logger.WithFields(logrus.Fields{"stream": p.Stream, "group": p.Group, "workers": p.NumWorkers}).Info("audio workers started")
	return nil
}

func (p *AudioWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			p.Logger.WithError(err).WithField("consumer", consumer).Warn("stream read failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				job, err := jobFromValues(msg.Values)
				if err != nil {
					p.Logger.WithError(err).WithField("redis_id", msg.ID).Warn("dropping audio job")
				} else {
					p.Processor.Handle(ctx, job)
				}
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

// AudioProcessor turns one utterance into a user turn, fresh metrics and the
// counterpart's streamed answer. Jobs of the same session run one at a time so
// turns keep their spoken order.
type AudioProcessor struct {
	sessions    services.SessionService
	counterpart services.CounterpartService
	speech      services.SpeechService
	buffers     services.BufferService
	bus         events.Publisher
	log         *logrus.Logger

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewAudioProcessor(sessions services.SessionService, counterpart services.CounterpartService, speech services.SpeechService, buffers services.BufferService, bus events.Publisher, log *logrus.Logger) *AudioProcessor {
	if log == nil {
		log = logrus.New()
	}
	return &AudioProcessor{
		sessions:    sessions,
		counterpart: counterpart,
		speech:      speech,
		buffers:     buffers,
		bus:         bus,
		log:         log,
		locks:       map[string]*sessionLock{},
	}
}

func (p *AudioProcessor) lock(sessionID string) func() {
	p.mu.Lock()
	l, ok := p.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		p.locks[sessionID] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(p.locks, sessionID)
		}
		p.mu.Unlock()
	}
}

func (p *AudioProcessor) publish(ctx context.Context, channel string, payload any) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, channel, payload); err != nil {
		p.log.WithError(err).WithField("channel", channel).Warn("publish failed")
	}
}

func (p *AudioProcessor) status(ctx context.Context, job AudioJob, status, msg string) {
	p.publish(ctx, events.SessionStatusChannel(job.SessionID), events.NewStatus(status, msg, job.ChunkIndex))
}

func (p *AudioProcessor) markSTT(ctx context.Context, job AudioJob, text string, conf float64, st models.ProcessingStatus, seq int64) {
	if p.buffers == nil {
		return
	}
	if err := p.buffers.MarkSTT(ctx, job.SessionID, job.ChunkIndex, text, conf, st, seq); err != nil {
		p.log.WithError(err).WithField("session_id", job.SessionID).Warn("buffer stt update failed")
	}
}

func (p *AudioProcessor) markReply(ctx context.Context, job AudioJob, reply string, st models.ProcessingStatus, seq, ms int64) {
	if p.buffers == nil {
		return
	}
	if err := p.buffers.MarkReply(ctx, job.SessionID, job.ChunkIndex, reply, st, seq, ms); err != nil {
		p.log.WithError(err).WithField("session_id", job.SessionID).Warn("buffer reply update failed")
	}
}

func decodeAudio(b64 string) ([]byte, error) {
	raw := b64
	if i := strings.Index(raw, ","); i >= 0 {
		raw = raw[i+1:] // strip data:...;base64,
	}
	return base64.StdEncoding.DecodeString(raw)
}

func (p *AudioProcessor) Handle(ctx context.Context, job AudioJob) {
	unlock := p.lock(job.SessionID)
	defer unlock()

	log := p.log.WithFields(logrus.Fields{"session_id": job.SessionID, "chunk_index": job.ChunkIndex})
	respCh := events.SessionResponseChannel(job.SessionID)

	text, conf := strings.TrimSpace(job.Text), 1.0
	if text == "" {
		if p.speech == nil {
			p.status(ctx, job, "failed", "speech recognition not configured")
			return
		}
		var audio []byte
		var err error
		switch {
		case job.AudioBase64 != "":
			audio, err = decodeAudio(job.AudioBase64)
		case job.AudioURL != "":
			audio, err = p.speech.FetchAudio(ctx, job.AudioURL)
		default:
			err = errors.New("no audio in job")
		}
		if err != nil {
			log.WithError(err).Warn("audio unreadable")
			p.markSTT(ctx, job, "", 0, models.StatusFailed, 0)
			p.status(ctx, job, "failed", "audio could not be read")
			return
		}

		p.markSTT(ctx, job, "", 0, models.StatusProcessing, 0)
		p.status(ctx, job, "processing", "transcribing")

		text, conf, err = p.speech.Transcribe(ctx, audio, job.Language, job.Format)
		if err != nil {
			log.WithError(err).Error("stt failed")
			p.markSTT(ctx, job, "", 0, models.StatusFailed, 0)
			p.status(ctx, job, "failed", "transcription failed")
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			p.markSTT(ctx, job, "", conf, models.StatusDone, 0)
			p.status(ctx, job, "done", "no speech detected")
			return
		}
	}

	rel := job.RelativeSeconds
	in := services.MessageInput{Content: text, Sender: models.SenderUser, RelativeSeconds: &rel}
	if job.AudioURL != "" {
		u := job.AudioURL
		in.AudioURL = &u
	}
	turn, err := p.sessions.SaveMessage(ctx, job.UserID, job.SessionID, in)
	if err != nil {
		log.WithError(err).Warn("user turn rejected")
		p.markSTT(ctx, job, text, conf, models.StatusFailed, 0)
		p.status(ctx, job, "failed", "message not saved")
		return
	}
	p.markSTT(ctx, job, text, conf, models.StatusDone, turn.Seq)
	p.publish(ctx, respCh, map[string]any{
		"type":        "stt_result",
		"chunk_index": job.ChunkIndex,
		"text":        text,
		"confidence":  conf,
		"turn":        turn,
	})

	if turns, err := p.sessions.Messages(ctx, job.UserID, job.SessionID); err == nil {
		n := 0
		for _, t := range turns {
			if t.Sender == models.SenderUser {
				n++
			}
		}
		p.publish(ctx, respCh, map[string]any{
			"type":        "metrics",
			"chunk_index": job.ChunkIndex,
			"metrics":     p.counterpart.ObserveUserTurn(ctx, job.SessionID, n, text),
		})
	}

	start := time.Now()
	p.markReply(ctx, job, "", models.StatusProcessing, 0, 0)
	p.status(ctx, job, "processing", "client is answering")

	reply, err := p.counterpart.Respond(ctx, job.UserID, job.SessionID, services.ReplyOptions{
		Stream:     true,
		ChunkIndex: job.ChunkIndex,
		Synthesize: job.Synthesize,
	})
	procMS := time.Since(start).Milliseconds()
	if err != nil {
		log.WithError(err).Error("counterpart reply failed")
		p.markReply(ctx, job, "", models.StatusFailed, 0, procMS)
		p.status(ctx, job, "failed", "reply failed")
		return
	}

	p.markReply(ctx, job, reply.Turn.Content, models.StatusDone, reply.Turn.Seq, procMS)
	p.publish(ctx, respCh, map[string]any{
		"type":               "reply_complete",
		"chunk_index":        job.ChunkIndex,
		"turn":               reply.Turn,
		"voice_hint":         reply.VoiceHint,
		"audio_base64":       reply.AudioBase64,
		"processing_time_ms": procMS,
	})
	p.status(ctx, job, "done", "chunk processed")
}
