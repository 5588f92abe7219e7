// Package chatlog writes one JSON object per request to an append-only file
// and aggregates metrics over it. Records are never rewritten.
package chatlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"ragserver/internal/domain"
)

type Logger struct {
	mu   sync.Mutex
	path string
}

// Metrics are aggregate counters over the chat log.
type Metrics struct {
	TotalInteractions int     `json:"total_interactions"`
	AvgLatencyMS      float64 `json:"avg_latency_ms"`
	AvgTokenCount     float64 `json:"avg_token_count"`
	AvgRetrievalScore float64 `json:"avg_retrieval_score"`
}

func New(path string) *Logger {
	return &Logger{path: path}
}

// Append writes one record as a single JSON line.
func (l *Logger) Append(rec domain.ChatRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// Metrics re-reads the log and returns aggregate counters. A missing log file
// means zero interactions, not an error. Malformed lines are skipped.
func (l *Logger) Metrics() (Metrics, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var m Metrics
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return m, err
	}
	defer f.Close()

	var latency, tokens, score float64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec domain.ChatRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		m.TotalInteractions++
		latency += rec.LatencyMS
		tokens += float64(rec.TokenCount)
		score += rec.RetrievalScore
	}
	if err := scanner.Err(); err != nil {
		return m, err
	}
	if m.TotalInteractions > 0 {
		n := float64(m.TotalInteractions)
		m.AvgLatencyMS = latency / n
		m.AvgTokenCount = tokens / n
		m.AvgRetrievalScore = score / n
	}
	return m, nil
}
