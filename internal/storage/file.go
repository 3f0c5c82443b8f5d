package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "cronbot/pkg/logx"
)

const compactRunsEvery = 500

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <path>                (job document, replaced on every save)
//   - <prefix>.runs.jsonl   (append-only run history, compacted to the
//     newest keepRuns records every compactRunsEvery appends)
type fileStore struct {
	log logx.Logger

	mu       sync.Mutex
	path     string
	runsPath string
	runsFile *os.File
	closed   bool

	keep         int
	compactEvery int
	appends      int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &fileStore{
		log:      log,
		path:     path,
		runsPath: filepath.Join(dir, base+".runs.jsonl"),

		keep:         keepRuns,
		compactEvery: compactRunsEvery,
	}, nil
}

func (s *fileStore) Load(ctx context.Context) ([]byte, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *fileStore) Save(ctx context.Context, doc []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	// The first append of a process compacts too, so short-lived processes
	// still bound the file.
	if s.appends%s.compactEvery == 0 {
		if err := s.compactRunsLocked(); err != nil {
			s.log.Debug("run history compact failed", logx.Err(err))
		}
	}
	s.appends++
	if s.runsFile == nil {
		if err := os.MkdirAll(filepath.Dir(s.runsPath), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(s.runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		s.runsFile = f
	}
	return json.NewEncoder(s.runsFile).Encode(r)
}

func (s *fileStore) Runs(ctx context.Context, jobID string, limit int) ([]RunRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	recs, err := s.readRunsLocked()
	if err != nil {
		return nil, err
	}
	return newestFirst(recs, jobID, limit), nil
}

// readRunsLocked returns every intact record, oldest first. Lines are read
// without a length cap.
func (s *fileStore) readRunsLocked() ([]RunRecord, error) {
	f, err := os.Open(s.runsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var recs []RunRecord
	br := bufio.NewReader(f)
	for {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var r RunRecord
			// A torn line after a crash is skipped, not fatal.
			if json.Unmarshal(line, &r) == nil {
				recs = append(recs, r)
			}
		}
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// compactRunsLocked rewrites the history file with only the newest
// s.keep records. Torn lines are dropped on the way.
func (s *fileStore) compactRunsLocked() error {
	recs, err := s.readRunsLocked()
	if err != nil || len(recs) <= s.keep {
		return err
	}
	recs = recs[len(recs)-s.keep:]

	tmp := s.runsPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	for _, r := range recs {
		if err = enc.Encode(r); err != nil {
			break
		}
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if s.runsFile != nil {
		_ = s.runsFile.Close()
		s.runsFile = nil
	}
	return os.Rename(tmp, s.runsPath)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.runsFile == nil {
		return nil
	}
	err := s.runsFile.Close()
	s.runsFile = nil
	return err
}
