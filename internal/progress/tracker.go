package progress

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of one file. Transitions are
// Pending -> InProgress -> Completed or Failed; the terminal states never
// change.
type State int

const (
	Pending State = iota
	InProgress
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Entry is the per-file record appended to the tracker history when a file
// finishes.
type Entry struct {
	Path       string
	Expected   int64
	Processed  int64
	Start      time.Time
	End        time.Time
	Duration   time.Duration
	Throughput float64
	Success    bool
	Error      string
}

// Summary aggregates a whole run.
type Summary struct {
	ProcessName     string
	TotalFiles      int
	FinishedFiles   int
	SuccessfulFiles int
	FailedFiles     int
	TotalRecords    int64
	Duration        time.Duration
	Throughput      float64
	SuccessRate     float64
	Files           []Entry
}

type fileState struct {
	state     State
	expected  int64
	processed int64
	start     time.Time
}

// Tracker maintains a lifecycle view of a multi-file ingestion run for
// observability and ETA estimation. It performs no ingestion itself. All
// methods are safe for concurrent use, so parallel file tasks can share one
// instance.
type Tracker struct {
	mu      sync.Mutex
	log     *logrus.Entry
	name    string
	total   int
	started time.Time
	files   map[string]*fileState
	history []Entry

	now func() time.Time // injectable for tests
}

// New creates a tracker for totalFiles files.
func New(log *logrus.Entry, totalFiles int, processName string) *Tracker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	t := &Tracker{
		log:   log,
		name:  processName,
		total: totalFiles,
		files: make(map[string]*fileState),
		now:   time.Now,
	}
	t.started = t.now()
	t.log.Infof("Starting %s: %d files to process", processName, totalFiles)
	return t
}

// StartFile transitions a file to InProgress and logs position and ETA.
func (t *Tracker) StartFile(path string, estimatedRecords int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.files[path] = &fileState{
		state:    InProgress,
		expected: estimatedRecords,
		start:    t.now(),
	}

	finished := len(t.history)
	t.log.Infof("[%d/%d] Starting %s (estimated %d records)",
		finished+1, t.total, filepath.Base(path), estimatedRecords)

	if eta := t.etaLocked(); eta > 0 {
		t.log.Infof("ETA for remaining files: %s", formatDuration(eta))
	}
}

// UpdateProgress updates the counters for an in-progress file and logs the
// instantaneous throughput.
func (t *Tracker) UpdateProgress(path string, processed, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fs, ok := t.files[path]
	if !ok || fs.state != InProgress {
		return
	}
	fs.processed = processed
	if total > 0 {
		fs.expected = total
	}

	elapsed := t.now().Sub(fs.start).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(processed) / elapsed
	}
	pct := 0.0
	if fs.expected > 0 {
		pct = float64(processed) / float64(fs.expected) * 100
	}
	t.log.Infof("%s: %d/%d records (%.1f%%), %.0f records/sec",
		filepath.Base(path), processed, fs.expected, pct, rate)
}

// CompleteFile transitions a file to Completed or Failed and appends it to
// the run history.
func (t *Tracker) CompleteFile(path string, finalCount int64, success bool, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fs, ok := t.files[path]
	if !ok || fs.state != InProgress {
		return
	}

	end := t.now()
	duration := end.Sub(fs.start)
	rate := 0.0
	if secs := duration.Seconds(); secs > 0 {
		rate = float64(finalCount) / secs
	}

	entry := Entry{
		Path:       path,
		Expected:   fs.expected,
		Processed:  finalCount,
		Start:      fs.start,
		End:        end,
		Duration:   duration,
		Throughput: rate,
		Success:    success,
		Error:      errMsg,
	}
	t.history = append(t.history, entry)

	if success {
		fs.state = Completed
		t.log.Infof("%s completed: %d records in %s (%.0f records/sec)",
			filepath.Base(path), finalCount, formatDuration(duration), rate)
	} else {
		fs.state = Failed
		t.log.Errorf("%s failed: %s", filepath.Base(path), errMsg)
	}

	t.log.Infof("Overall progress: %d/%d files in %s",
		len(t.history), t.total, formatDuration(end.Sub(t.started)))
}

// ETA estimates the time remaining for the files not yet finished, using the
// mean duration of every finished file (successful or not).
func (t *Tracker) ETA() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.etaLocked()
}

func (t *Tracker) etaLocked() time.Duration {
	if len(t.history) == 0 {
		return 0
	}
	var total time.Duration
	for _, e := range t.history {
		total += e.Duration
	}
	avg := total / time.Duration(len(t.history))
	remaining := t.total - len(t.history)
	if remaining <= 0 {
		return 0
	}
	return avg * time.Duration(remaining)
}

// Summary returns the aggregate view of the run so far.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{
		ProcessName:   t.name,
		TotalFiles:    t.total,
		FinishedFiles: len(t.history),
		Duration:      t.now().Sub(t.started),
		Files:         append([]Entry(nil), t.history...),
	}
	for _, e := range t.history {
		if e.Success {
			s.SuccessfulFiles++
		} else {
			s.FailedFiles++
		}
		s.TotalRecords += e.Processed
	}
	if secs := s.Duration.Seconds(); secs > 0 {
		s.Throughput = float64(s.TotalRecords) / secs
	}
	if len(t.history) > 0 {
		s.SuccessRate = float64(s.SuccessfulFiles) / float64(len(t.history)) * 100
	}
	return s
}

// LogSummary writes the final run summary to the log.
func (t *Tracker) LogSummary() {
	s := t.Summary()
	t.log.Infof("%s complete: %d/%d files succeeded (%.1f%% success rate)",
		s.ProcessName, s.SuccessfulFiles, s.TotalFiles, s.SuccessRate)
	t.log.Infof("Records: %d total in %s (%.0f records/sec average)",
		s.TotalRecords, formatDuration(s.Duration), s.Throughput)
	for _, e := range s.Files {
		if !e.Success {
			t.log.Warnf("Failed: %s: %s", filepath.Base(e.Path), e.Error)
		}
	}
}

// formatDuration renders a duration the way operators read log files:
// seconds below a minute, then minutes, then hours.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
