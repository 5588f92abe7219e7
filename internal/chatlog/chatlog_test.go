package chatlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragserver/internal/domain"
)

func record(latency float64, tokens int, score float64) domain.ChatRecord {
	return domain.ChatRecord{
		RequestID:      "r1",
		SessionID:      "s1",
		UserID:         "anonymous",
		Question:       "q",
		Answer:         "a",
		Sources:        []string{"kb/doc.md"},
		LatencyMS:      latency,
		TokenCount:     tokens,
		RetrievalScore: score,
		Timestamp:      time.Now(),
	}
}

func TestAppend_OneJSONLinePerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.jsonl")
	l := New(path)
	require.NoError(t, l.Append(record(10, 5, 0.5)))
	require.NoError(t, l.Append(record(20, 7, 0.7)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"request_id":"r1"`)
}

func TestMetrics_Averages(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "cases.jsonl"))
	require.NoError(t, l.Append(record(10, 4, 0.2)))
	require.NoError(t, l.Append(record(30, 8, 0.6)))

	m, err := l.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalInteractions)
	assert.InDelta(t, 20.0, m.AvgLatencyMS, 1e-9)
	assert.InDelta(t, 6.0, m.AvgTokenCount, 1e-9)
	assert.InDelta(t, 0.4, m.AvgRetrievalScore, 1e-9)
}

func TestMetrics_MissingFile(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "absent.jsonl"))
	m, err := l.Metrics()
	require.NoError(t, err)
	assert.Zero(t, m.TotalInteractions)
	assert.Zero(t, m.AvgLatencyMS)
}

func TestMetrics_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.jsonl")
	l := New(path)
	require.NoError(t, l.Append(record(10, 4, 0.2)))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	m, err := l.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalInteractions)
}
