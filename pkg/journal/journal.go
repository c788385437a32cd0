package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// RotationRecord captures one terminal rotation for audit and replay.
type RotationRecord struct {
	Timestamp     time.Time `msgpack:"ts"`
	MonitorSymbol string    `msgpack:"monitor"`
	Direction     string    `msgpack:"direction"`
	SeatVersion   int64     `msgpack:"seat_version"`
	Trigger       string    `msgpack:"trigger"`
	Stage         string    `msgpack:"stage"`
	OldSymbol     string    `msgpack:"old_symbol,omitempty"`
	NextSymbol    string    `msgpack:"next_symbol,omitempty"`
	NextCallPrice float64   `msgpack:"next_call_price,omitempty"`
	SellNotional  *float64  `msgpack:"sell_notional,omitempty"`
	FailReason    string    `msgpack:"fail_reason,omitempty"`
	StartedAt     time.Time `msgpack:"started_at"`
}

// Writer appends rotation records to one binary file per day. Each frame is a
// 4-byte big-endian length followed by the msgpack body, so a torn tail write
// never corrupts earlier frames.
type Writer struct {
	mu    sync.Mutex
	dir   string
	nowFn func() time.Time
}

// NewWriter constructs a journal writer rooted at dir.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Writer{dir: dir, nowFn: time.Now}
}

// Append encodes and appends one record to the current day's file.
func (w *Writer) Append(rec *RotationRecord) error {
	if rec == nil {
		return errors.New("journal: nil record")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.nowFn()
	}
	body, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: encode record: %w", err)
	}
	path := filepath.Join(w.dir, fmt.Sprintf("rotations_%s.mpk", rec.Timestamp.UTC().Format("20060102")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer f.Close()
	var frame [4]byte
	binary.BigEndian.PutUint32(frame[:], uint32(len(body)))
	if _, err := f.Write(append(frame[:], body...)); err != nil {
		return fmt.Errorf("journal: append to %s: %w", path, err)
	}
	return nil
}

// ReadFile decodes every complete frame in a journal file. A truncated final
// frame is dropped rather than reported as an error.
func ReadFile(path string) ([]RotationRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer f.Close()

	var out []RotationRecord
	var frame [4]byte
	for {
		if _, err := io.ReadFull(f, frame[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return out, nil
			}
			return out, fmt.Errorf("journal: read frame header: %w", err)
		}
		body := make([]byte, binary.BigEndian.Uint32(frame[:]))
		if _, err := io.ReadFull(f, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return out, nil // torn tail write
			}
			return out, fmt.Errorf("journal: read frame body: %w", err)
		}
		var rec RotationRecord
		if err := msgpack.Unmarshal(body, &rec); err != nil {
			return out, fmt.Errorf("journal: decode frame: %w", err)
		}
		out = append(out, rec)
	}
}
