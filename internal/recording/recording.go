// Package recording writes session frames to an append-only, zstd-compressed
// msgpack stream and reads them back for replay.
package recording

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/yegors/tracon-sim/internal/conflict"
	"github.com/yegors/tracon-sim/internal/scoring"
	"github.com/yegors/tracon-sim/internal/simulation"
	"github.com/yegors/tracon-sim/pkg/logger"
)

// ErrClosed is returned by a recorder after Close
var ErrClosed = errors.New("recorder closed")

// Record is one entry in a recording. Snapshot is set on sampled ticks; the
// event lists are written for every tick that has any.
type Record struct {
	Tick     uint64                     `msgpack:"tick"`
	SimTime  time.Duration              `msgpack:"sim_time"`
	Snapshot *simulation.Snapshot       `msgpack:"snapshot,omitempty"`
	Raised   []conflict.Alert           `msgpack:"raised,omitempty"`
	Commands []simulation.CommandRecord `msgpack:"commands,omitempty"`
	Removed  []simulation.Departure     `msgpack:"removed,omitempty"`
	Final    *scoring.Metrics           `msgpack:"final,omitempty"`
}

func (r Record) empty() bool {
	return r.Snapshot == nil && len(r.Raised) == 0 && len(r.Commands) == 0 &&
		len(r.Removed) == 0 && r.Final == nil
}

// Config controls what is recorded
type Config struct {
	Path          string
	SnapshotEvery int    // ticks between recorded snapshots; 1 records every tick
	Level         string // zstd level: fastest, default, better or best
}

// FileName returns the recording path for a session started at t
func FileName(dir string, t time.Time) string {
	return filepath.Join(dir, "session-"+t.UTC().Format("20060102-150405")+".rec.zst")
}

// Recorder appends frames to a file. It is a simulation.Sink.
type Recorder struct {
	cfg    Config
	logger *logger.Logger

	mu      sync.Mutex
	file    *os.File
	zw      *zstd.Encoder
	enc     *msgpack.Encoder
	records int
	err     error
}

// Create opens a new recording, creating parent directories as needed
func Create(cfg Config, log *logger.Logger) (*Recorder, error) {
	if cfg.Path == "" {
		return nil, errors.New("invalid recording config: path is required")
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = 1
	}
	level := zstd.SpeedDefault
	if cfg.Level != "" {
		ok, l := zstd.EncoderLevelFromString(cfg.Level)
		if !ok {
			return nil, fmt.Errorf("invalid recording config: unknown level %q", cfg.Level)
		}
		level = l
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(level))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	enc := msgpack.NewEncoder(zw)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)

	return &Recorder{
		cfg:    cfg,
		logger: log.Named("recording"),
		file:   f,
		zw:     zw,
		enc:    enc,
	}, nil
}

// Consume records a frame. A write failure is logged once and stops the
// recording; the session carries on.
func (r *Recorder) Consume(f simulation.Frame) {
	if f.Snapshot == nil {
		return
	}
	rec := Record{
		Tick:     f.Snapshot.Tick,
		SimTime:  f.Snapshot.SimTime,
		Raised:   f.Raised,
		Commands: f.Commands,
		Removed:  f.Removed,
		Final:    f.Final,
	}
	if f.Snapshot.Tick%uint64(r.cfg.SnapshotEvery) == 0 || f.Final != nil {
		rec.Snapshot = f.Snapshot
	}
	if err := r.Write(rec); err != nil && !errors.Is(err, ErrClosed) {
		r.logger.Error("Recording stopped", logger.String("path", r.cfg.Path), logger.Error(err))
	}
	if f.Final != nil {
		if err := r.Flush(); err != nil && !errors.Is(err, ErrClosed) {
			r.logger.Warn("Failed to flush recording", logger.Error(err))
		}
	}
}

// Write appends one record. Records with nothing in them are skipped.
func (r *Recorder) Write(rec Record) error {
	if rec.empty() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if err := r.enc.Encode(&rec); err != nil {
		r.err = fmt.Errorf("failed to encode record at tick %d: %w", rec.Tick, err)
		return r.err
	}
	r.records++
	return nil
}

// Flush pushes buffered records through to the file
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	return r.zw.Flush()
}

// Records returns the number of records written
func (r *Recorder) Records() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records
}

// Close finishes the zstd stream and closes the file
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if errors.Is(r.err, ErrClosed) {
		return nil
	}
	r.err = ErrClosed

	if err := r.zw.Close(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close recording: %w", err)
	}
	r.logger.Info("Recording closed",
		logger.String("path", r.cfg.Path),
		logger.Int("records", r.records))
	return nil
}

// Reader replays a recording one record at a time
type Reader struct {
	file *os.File
	zr   *zstd.Decoder
	dec  *msgpack.Decoder
}

// Open opens a recording for reading
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	zr, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	dec := msgpack.NewDecoder(zr)
	dec.SetCustomStructTag("json")
	return &Reader{file: f, zr: zr, dec: dec}, nil
}

// Next returns the next record, or io.EOF at the end of the recording
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}

// Close releases the reader
func (r *Reader) Close() error {
	r.zr.Close()
	return r.file.Close()
}

// ReadAll loads every record in a recording
func ReadAll(path string) ([]Record, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
