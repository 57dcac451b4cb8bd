// Package convlog defines the versioned JSON document stored in
// training_sessions.conversation_log and validates it on read.
package convlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nuevpro/ventas/internal/metrics"
	"github.com/nuevpro/ventas/internal/models"
)

const SchemaVersion = 1

var (
	ErrUnsupportedVersion = errors.New("unsupported conversation log version")
	ErrInvalidTurn        = errors.New("invalid conversation turn")
	ErrMalformed          = errors.New("malformed conversation log")
)

type Turn struct {
	Seq             int64         `json:"seq,omitempty"`
	Sender          models.Sender `json:"sender"`
	Content         string        `json:"content"`
	RelativeSeconds float64       `json:"timestamp"`
	AudioURL        string        `json:"audio_url,omitempty"`
}

type Summary struct {
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int64     `json:"duration_seconds"`
	Score           int       `json:"score"`
	ScoreSource     string    `json:"score_source"` // caller|evaluation|realtime
}

type Log struct {
	SchemaVersion int                  `json:"schema_version"`
	Config        models.SessionConfig `json:"config"`
	Turns         []Turn               `json:"turns"`
	FinalMetrics  *metrics.RealTime    `json:"final_metrics,omitempty"`
	Summary       *Summary             `json:"summary,omitempty"`
}

func New(cfg models.SessionConfig) *Log {
	return &Log{SchemaVersion: SchemaVersion, Config: cfg, Turns: []Turn{}}
}

// FromTurns converts persisted rows (already ordered by seq) into log turns.
func FromTurns(rows []models.ConversationTurn) []Turn {
	out := make([]Turn, 0, len(rows))
	for _, r := range rows {
		t := Turn{Seq: r.Seq, Sender: r.Sender, Content: r.Content, RelativeSeconds: r.RelativeSeconds}
		if r.AudioURL != nil {
			t.AudioURL = *r.AudioURL
		}
		out = append(out, t)
	}
	return out
}

func (l *Log) Validate() error {
	if l.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, l.SchemaVersion)
	}
	prev := 0.0
	for i, t := range l.Turns {
		if !t.Sender.Valid() {
			return fmt.Errorf("%w: turn %d has sender %q", ErrInvalidTurn, i, t.Sender)
		}
		if t.RelativeSeconds < 0 || t.RelativeSeconds < prev {
			return fmt.Errorf("%w: turn %d timestamp %.3f out of order", ErrInvalidTurn, i, t.RelativeSeconds)
		}
		prev = t.RelativeSeconds
	}
	return nil
}

func Encode(l *Log) ([]byte, error) {
	if l == nil {
		return nil, ErrMalformed
	}
	if l.Turns == nil {
		l.Turns = []Turn{}
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(l)
}

// legacy is the version-less shape written by older clients: config fields at the
// top level and turns under "messages".
type legacy struct {
	models.SessionConfig
	Messages []struct {
		Sender    string  `json:"sender"`
		Content   string  `json:"content"`
		Timestamp float64 `json:"timestamp"`
		AudioURL  string  `json:"audio_url,omitempty"`
	} `json:"messages"`
}

// Decode parses and validates a stored log. Unknown versions are rejected; the
// version-less legacy shape is upgraded.
func Decode(b []byte) (*Log, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, fmt.Errorf("%w: empty document", ErrMalformed)
	}

	var probe struct {
		SchemaVersion *int `json:"schema_version"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if probe.SchemaVersion == nil {
		return upgradeLegacy(b)
	}
	if *probe.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, *probe.SchemaVersion)
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var l Log
	if err := dec.Decode(&l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if l.Turns == nil {
		l.Turns = []Turn{}
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

func upgradeLegacy(b []byte) (*Log, error) {
	var old legacy
	if err := json.Unmarshal(b, &old); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	l := New(old.SessionConfig)
	for i, m := range old.Messages {
		l.Turns = append(l.Turns, Turn{
			Seq:             int64(i + 1),
			Sender:          models.Sender(m.Sender),
			Content:         m.Content,
			RelativeSeconds: m.Timestamp,
			AudioURL:        m.AudioURL,
		})
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}
