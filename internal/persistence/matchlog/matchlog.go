package matchlog

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"

	"blockpatterns.dev/internal/metrics"
	"blockpatterns.dev/internal/verify"
)

const DefaultQueue = 4096

// Logger is a match sink. Emit never blocks: when the writer falls behind
// matches are dropped and counted.
type Logger struct {
	w       *JSONLZstdWriter
	metrics *metrics.Metrics
	log     *log.Logger

	mu      sync.RWMutex
	closed  bool
	ch      chan verify.Match
	done    chan struct{}
	dropped atomic.Uint64
}

func New(dir string, queue int, m *metrics.Metrics, logger *log.Logger) *Logger {
	if queue <= 0 {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	l := &Logger{
		w:       NewJSONLZstdWriter(dir, "matches"),
		metrics: m,
		log:     logger,
		ch:      make(chan verify.Match, queue),
		done:    make(chan struct{}),
	}
	go l.loop()
	return l
}

func (l *Logger) Emit(m verify.Match) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- m:
	default:
		l.dropped.Add(1)
		l.metrics.SinkDrop("matchlog")
	}
}

func (l *Logger) Dropped() uint64 { return l.dropped.Load() }

// Close drains the queue and closes the current file.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.ch)
	l.mu.Unlock()
	<-l.done
	return l.w.Close()
}

func (l *Logger) loop() {
	defer close(l.done)
	for m := range l.ch {
		if err := l.w.Write(m); err != nil {
			l.log.Printf("matchlog: write seq %d: %v", m.Seq, err)
		}
	}
}

// Files lists the match log files in dir, oldest first.
func Files(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "matches-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile decodes every match in one log file.
func ReadFile(path string) ([]verify.Match, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []verify.Match
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var m verify.Match
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			return out, err
		}
		out = append(out, m)
	}
	return out, sc.Err()
}
