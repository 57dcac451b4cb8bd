package services

import (
	"context"
	"errors"
	"time"

	"github.com/nuevpro/ventas/internal/models"
	mongorepo "github.com/nuevpro/ventas/internal/repositories/mongo"
	"github.com/nuevpro/ventas/internal/utils"
)

// ChunkInput is one spoken chunk received on the live channel.
type ChunkInput struct {
	UserID          string
	SessionID       string
	ChunkIndex      int64
	Language        string
	RelativeSeconds float64
	AudioURL        *string
	AudioBase64     *string
}

type BufferService interface {
	InsertAudioChunk(ctx context.Context, in ChunkInput) (*models.RealtimeBuffer, error)
	GetChunk(ctx context.Context, sessionID string, chunkIndex int64) (*models.RealtimeBuffer, error)
	MarkSTT(ctx context.Context, sessionID string, chunkIndex int64, transcript string, confidence float64, status models.ProcessingStatus, userTurnSeq int64) error
	MarkReply(ctx context.Context, sessionID string, chunkIndex int64, reply string, status models.ProcessingStatus, aiTurnSeq, processingMS int64) error
	ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.RealtimeBuffer, error)
}

type bufferService struct {
	buffers mongorepo.BufferRepository
	ttl     time.Duration
	now     func() time.Time
}

func NewBufferService(buffers mongorepo.BufferRepository, ttl time.Duration) BufferService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &bufferService{buffers: buffers, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func (s *bufferService) InsertAudioChunk(ctx context.Context, in ChunkInput) (*models.RealtimeBuffer, error) {
	const op = "BufferService.InsertAudioChunk"

	if in.SessionID == "" || in.ChunkIndex <= 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required and chunk_index must be > 0", nil)
	}
	if in.AudioURL == nil && in.AudioBase64 == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "audio_url or audio_base64 is required", nil)
	}
	if in.RelativeSeconds < 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "relative_seconds must be >= 0", nil)
	}

	now := s.now()
	doc := &models.RealtimeBuffer{
		SessionID:       in.SessionID,
		UserID:          in.UserID,
		ChunkIndex:      in.ChunkIndex,
		AudioURL:        in.AudioURL,
		AudioBase64:     in.AudioBase64,
		Language:        in.Language,
		RelativeSeconds: in.RelativeSeconds,

		STTStatus:   models.StatusPending,
		ReplyStatus: models.StatusPending,

		Timestamp: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.buffers.InsertChunk(ctx, doc); err != nil {
		if errors.Is(err, utils.ErrAlreadyExists) {
			return nil, utils.E(utils.CodeConflict, op, "chunk already received", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to insert audio chunk", err)
	}
	return doc, nil
}

func (s *bufferService) GetChunk(ctx context.Context, sessionID string, chunkIndex int64) (*models.RealtimeBuffer, error) {
	const op = "BufferService.GetChunk"

	b, err := s.buffers.GetChunk(ctx, sessionID, chunkIndex)
	if err != nil {
		return nil, repoErr(op, "chunk", err)
	}
	return b, nil
}

func (s *bufferService) MarkSTT(ctx context.Context, sessionID string, chunkIndex int64, transcript string, confidence float64, status models.ProcessingStatus, userTurnSeq int64) error {
	const op = "BufferService.MarkSTT"

	if sessionID == "" || chunkIndex <= 0 || status == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id, chunk_index (>0), and status are required", nil)
	}
	if err := s.buffers.UpdateSTT(ctx, sessionID, chunkIndex, transcript, confidence, status, userTurnSeq); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to update stt fields", err)
	}
	return nil
}

func (s *bufferService) MarkReply(ctx context.Context, sessionID string, chunkIndex int64, reply string, status models.ProcessingStatus, aiTurnSeq, processingMS int64) error {
	const op = "BufferService.MarkReply"

	if sessionID == "" || chunkIndex <= 0 || status == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id, chunk_index (>0), and status are required", nil)
	}
	if err := s.buffers.UpdateReply(ctx, sessionID, chunkIndex, reply, status, aiTurnSeq, processingMS); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to update reply fields", err)
	}
	return nil
}

func (s *bufferService) ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.RealtimeBuffer, error) {
	const op = "BufferService.ListBySession"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	out, err := s.buffers.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list realtime buffer", err)
	}
	return out, nil
}
