package sqlite

import (
	"fmt"
	"time"

	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
)

// Store pairs the single-connection Writer with a Reader pool on the same file.
type Store struct {
	*Writer
	*Reader
}

var (
	_ model.SampleReader = (*Store)(nil)
	_ model.SampleWriter = (*Store)(nil)
	_ model.SetupStore   = (*Store)(nil)
)

// Open creates the schema and returns a ready Store.
func Open(path string, batchSize int, flushDelay time.Duration, m *metrics.Metrics) (*Store, error) {
	w, err := New(WriterConfig{DBPath: path, BatchSize: batchSize, FlushDelay: flushDelay, Metrics: m})
	if err != nil {
		return nil, err
	}
	r, err := NewReader(path)
	if err != nil {
		w.Close()
		return nil, err
	}
	return &Store{Writer: w, Reader: r}, nil
}

// Close closes both pools.
func (s *Store) Close() error {
	rerr := s.Reader.Close()
	if err := s.Writer.Close(); err != nil {
		return fmt.Errorf("sqlite close writer: %w", err)
	}
	return rerr
}
