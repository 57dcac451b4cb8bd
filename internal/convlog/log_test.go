package convlog

import (
	"testing"
	"time"

	"github.com/nuevpro/ventas/internal/metrics"
	"github.com/nuevpro/ventas/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLog() *Log {
	l := New(models.SessionConfig{ScenarioID: "sc-1", ClientProfile: "escéptico", InteractionMode: "voice", VoiceID: "lucia"})
	l.Turns = []Turn{
		{Seq: 1, Sender: models.SenderUser, Content: "Buenos días", RelativeSeconds: 1.5},
		{Seq: 2, Sender: models.SenderAI, Content: "Hola, ¿qué me ofrece?", RelativeSeconds: 3, AudioURL: "https://cdn/a.mp3"},
		{Seq: 3, Sender: models.SenderUser, Content: "Un plan anual", RelativeSeconds: 3},
		{Seq: 4, Sender: models.SenderAI, Content: "Es caro", RelativeSeconds: 9.25},
	}
	return l
}

func TestRoundTripPreservesTurns(t *testing.T) {
	in := sampleLog()
	in.FinalMetrics = &metrics.RealTime{Rapport: 70, Clarity: 60, Empathy: 55, Accuracy: 80, Overall: 66, Trend: metrics.TrendUp}
	in.Summary = &Summary{EndedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), DurationSeconds: 125, Score: 66, ScoreSource: "realtime"}

	b, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, in.Turns, out.Turns)
	assert.Equal(t, in.Config, out.Config)
	assert.Equal(t, in.FinalMetrics, out.FinalMetrics)
	assert.Equal(t, in.Summary.DurationSeconds, out.Summary.DurationSeconds)
	assert.True(t, in.Summary.EndedAt.Equal(out.Summary.EndedAt))
}

func TestEncodeEmptyTurns(t *testing.T) {
	b, err := Encode(New(models.SessionConfig{}))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"turns":[]`)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	_, err := Decode([]byte(`{"schema_version":2,"turns":[]}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode([]byte(`{"schema_version":1,"turns":[],"mystery":true}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsBadTurns(t *testing.T) {
	_, err := Decode([]byte(`{"schema_version":1,"turns":[{"sender":"bot","content":"x","timestamp":1}]}`))
	assert.ErrorIs(t, err, ErrInvalidTurn)

	_, err = Decode([]byte(`{"schema_version":1,"turns":[
		{"sender":"user","content":"a","timestamp":5},
		{"sender":"ai","content":"b","timestamp":2}]}`))
	assert.ErrorIs(t, err, ErrInvalidTurn)
}

func TestDecodeEmptyOrGarbage(t *testing.T) {
	for _, in := range []string{"", "null", "  ", "{not json"} {
		_, err := Decode([]byte(in))
		assert.ErrorIs(t, err, ErrMalformed, "input %q", in)
	}
}

func TestDecodeUpgradesLegacyShape(t *testing.T) {
	legacy := `{"scenario_id":"sc-9","voice_id":"diego","messages":[
		{"sender":"user","content":"Hola","timestamp":0},
		{"sender":"ai","content":"¿Sí?","timestamp":2.5}]}`
	l, err := Decode([]byte(legacy))
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, l.SchemaVersion)
	assert.Equal(t, "sc-9", l.Config.ScenarioID)
	assert.Equal(t, "diego", l.Config.VoiceID)
	require.Len(t, l.Turns, 2)
	assert.Equal(t, int64(2), l.Turns[1].Seq)
	assert.Equal(t, models.SenderAI, l.Turns[1].Sender)
}

func TestFromTurns(t *testing.T) {
	url := "https://cdn/x.mp3"
	rows := []models.ConversationTurn{
		{Seq: 1, Sender: models.SenderUser, Content: "a", RelativeSeconds: 1},
		{Seq: 2, Sender: models.SenderAI, Content: "b", RelativeSeconds: 2, AudioURL: &url},
	}
	turns := FromTurns(rows)
	require.Len(t, turns, 2)
	assert.Equal(t, url, turns[1].AudioURL)
	assert.Empty(t, turns[0].AudioURL)
}
