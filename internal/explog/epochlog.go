package explog

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/banshee-data/hyperscan/internal/fsutil"
)

// EpochEntry is one line of the per-epoch log.
type EpochEntry struct {
	Round   int                `json:"round"`
	Epoch   int                `json:"epoch"`
	Metrics map[string]float64 `json:"metrics"`
}

type epochJSON struct {
	Round   int            `json:"round"`
	Epoch   int            `json:"epoch"`
	Metrics map[string]any `json:"metrics"`
}

// MarshalJSON writes NaN and infinities as strings ("NaN", "+Inf", "-Inf").
func (e EpochEntry) MarshalJSON() ([]byte, error) {
	out := epochJSON{Round: e.Round, Epoch: e.Epoch}
	if e.Metrics != nil {
		out.Metrics = make(map[string]any, len(e.Metrics))
		for k, v := range e.Metrics {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				out.Metrics[k] = strconv.FormatFloat(v, 'g', -1, 64)
			} else {
				out.Metrics[k] = v
			}
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (e *EpochEntry) UnmarshalJSON(data []byte) error {
	var in epochJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = EpochEntry{Round: in.Round, Epoch: in.Epoch}
	if in.Metrics == nil {
		return nil
	}
	e.Metrics = make(map[string]float64, len(in.Metrics))
	for k, v := range in.Metrics {
		switch x := v.(type) {
		case float64:
			e.Metrics[k] = x
		case string:
			f, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return fmt.Errorf("metric %s: %w", k, err)
			}
			e.Metrics[k] = f
		default:
			return fmt.Errorf("metric %s: unexpected %T", k, v)
		}
	}
	return nil
}

// EpochLogger appends per-epoch metrics as JSON lines. Training functions
// call it from their own epoch loop.
type EpochLogger struct {
	mu    sync.Mutex
	fs    fsutil.FileSystem
	path  string
	round int
}

// NewEpochLogger writes to path. A nil fs uses the OS.
func NewEpochLogger(fs fsutil.FileSystem, path string) *EpochLogger {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &EpochLogger{fs: fs, path: path}
}

// Path is the log file location.
func (e *EpochLogger) Path() string { return e.path }

// SetRound sets the round stamped on subsequent entries.
func (e *EpochLogger) SetRound(round int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.round = round
}

// Log appends one epoch. A nil logger discards the entry.
func (e *EpochLogger) Log(epoch int, metrics map[string]float64) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	line, err := json.Marshal(EpochEntry{Round: e.round, Epoch: epoch, Metrics: metrics})
	if err != nil {
		return fmt.Errorf("encode epoch %d: %w", epoch, err)
	}
	return e.fs.AppendFile(e.path, append(line, '\n'), 0o644)
}
