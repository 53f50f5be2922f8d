package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "crossfit/pkg/logx"
)

// fileStore is the dependency-free backend: one append-only JSON Lines
// file. Reads replay the whole file; run history stays small enough that
// this never matters.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File
}

type runLine struct {
	ID           string `json:"id"`
	StartedAt    int64  `json:"started_at"` // unix milli
	DurationMS   int64  `json:"duration_ms"`
	PlanDigest   string `json:"plan_digest"`
	SnapshotMode string `json:"snapshot_mode,omitempty"`
	Total        int    `json:"total"`
	Passed       int    `json:"passed"`
	Failed       int    `json:"failed"`
	FailuresJSON string `json:"failures,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, f: f}, nil
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.f == nil {
		return ErrDisabled
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	b, err := json.Marshal(runLine{
		ID:           r.ID,
		StartedAt:    r.StartedAt.UnixMilli(),
		DurationMS:   r.DurationMS,
		PlanDigest:   r.PlanDigest,
		SnapshotMode: r.SnapshotMode,
		Total:        r.Total,
		Passed:       r.Passed,
		Failed:       r.Failed,
		FailuresJSON: r.FailuresJSON,
	})
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(b); err != nil {
		return err
	}
	return s.f.Sync()
}

func (s *fileStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}

	rf, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rf.Close()

	var all []RunRecord
	sc := bufio.NewScanner(rf)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rl runLine
		if err := json.Unmarshal([]byte(line), &rl); err != nil {
			// A torn trailing line from a crash is expected; skip it.
			s.log.Debug("history: skipping unreadable line", logx.Err(err))
			continue
		}
		all = append(all, RunRecord{
			ID:           rl.ID,
			StartedAt:    time.UnixMilli(rl.StartedAt),
			DurationMS:   rl.DurationMS,
			PlanDigest:   rl.PlanDigest,
			SnapshotMode: rl.SnapshotMode,
			Total:        rl.Total,
			Passed:       rl.Passed,
			Failed:       rl.Failed,
			FailuresJSON: rl.FailuresJSON,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	// Newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
