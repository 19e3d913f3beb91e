// Package loopdetect watches the tool call stream for repetition patterns
// that indicate the agent is stuck: identical no-progress calls, two calls
// alternating in a ping-pong, or plain high-frequency repeats.
package loopdetect

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const (
	windowSize = 20

	noProgressCritical = 12
	noProgressWarning  = 8

	pingPongCritical = 10

	repeatCritical = 12
	repeatWarning  = 8
)

// Level grades how stuck the agent looks.
type Level int

const (
	LevelOK Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "ok"
	}
}

// Record is one observed tool call with its outcome.
type Record struct {
	Tool       string
	ArgsHash   string
	ResultHash string
	At         time.Time
}

// CheckResult is the detector's verdict for a prospective call.
type CheckResult struct {
	Level   Level
	Message string
}

// Detector keeps a sliding window of recent calls per task. Create one per
// task; instances are independent and safe for concurrent use.
type Detector struct {
	mu     sync.Mutex
	window []Record
	size   int
	// warned dedups warnings per call signature so the same near-loop
	// does not warn on every subsequent call.
	warned map[string]bool
}

// New creates a detector with the default window size.
func New() *Detector {
	return NewWithSize(windowSize)
}

// NewWithSize creates a detector keeping the last size calls.
func NewWithSize(size int) *Detector {
	if size <= 0 {
		size = windowSize
	}
	return &Detector{size: size, warned: make(map[string]bool)}
}

// HashArgs hashes tool arguments into a canonical hex digest. JSON
// marshaling sorts map keys, so logically equal argument maps hash the
// same regardless of key order.
func HashArgs(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hashResult(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Check evaluates a prospective call against the window before it runs.
// The highest-severity rule wins; warnings fire once per signature.
func (d *Detector) Check(tool string, args map[string]any) CheckResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	argsHash := HashArgs(args)
	sig := tool + ":" + argsHash

	verdict := CheckResult{Level: LevelOK}
	for _, res := range []CheckResult{
		d.checkNoProgress(tool, argsHash, sig),
		d.checkPingPong(tool, argsHash),
		d.checkRepeat(sig),
	} {
		if res.Level > verdict.Level {
			verdict = res
		}
	}
	return verdict
}

// checkNoProgress counts the trailing streak of calls identical in tool,
// args, and result. A streak of identical outcomes means the call changes
// nothing.
func (d *Detector) checkNoProgress(tool, argsHash, sig string) CheckResult {
	streak := 0
	var lastResult string
	for i := len(d.window) - 1; i >= 0; i-- {
		r := d.window[i]
		if r.Tool != tool || r.ArgsHash != argsHash {
			break
		}
		if streak == 0 {
			lastResult = r.ResultHash
		} else if r.ResultHash != lastResult {
			break
		}
		streak++
	}
	if streak >= noProgressCritical {
		return CheckResult{
			Level:   LevelCritical,
			Message: fmt.Sprintf("the same call has returned the same result %d times in a row; it is not making progress", streak),
		}
	}
	if streak >= noProgressWarning && !d.warned[sig] {
		d.warned[sig] = true
		return CheckResult{
			Level:   LevelWarning,
			Message: fmt.Sprintf("the same call has returned the same result %d times; consider a different approach", streak),
		}
	}
	return CheckResult{Level: LevelOK}
}

// checkPingPong detects two call signatures strictly alternating.
func (d *Detector) checkPingPong(tool, argsHash string) CheckResult {
	if len(d.window) < pingPongCritical-1 {
		return CheckResult{Level: LevelOK}
	}
	next := sigOf(tool, argsHash)
	prev := sigOfRecord(d.window[len(d.window)-1])
	if next == prev {
		return CheckResult{Level: LevelOK}
	}
	// Walk backwards expecting ...prev,next,prev,next including the
	// prospective call.
	count := 1 // the prospective call
	want := prev
	for i := len(d.window) - 1; i >= 0; i-- {
		if sigOfRecord(d.window[i]) != want {
			break
		}
		count++
		if want == prev {
			want = next
		} else {
			want = prev
		}
	}
	if count >= pingPongCritical {
		return CheckResult{
			Level:   LevelCritical,
			Message: fmt.Sprintf("two calls are alternating with no progress (%d in a row)", count),
		}
	}
	return CheckResult{Level: LevelOK}
}

// checkRepeat counts identical signatures anywhere in the window.
func (d *Detector) checkRepeat(sig string) CheckResult {
	count := 0
	for _, r := range d.window {
		if sigOfRecord(r) == sig {
			count++
		}
	}
	if count >= repeatCritical {
		return CheckResult{
			Level:   LevelCritical,
			Message: fmt.Sprintf("the same call has been made %d times recently", count),
		}
	}
	if count >= repeatWarning && !d.warned[sig] {
		d.warned[sig] = true
		return CheckResult{
			Level:   LevelWarning,
			Message: fmt.Sprintf("the same call has been made %d times recently; vary the approach if it is not working", count),
		}
	}
	return CheckResult{Level: LevelOK}
}

// Record appends an executed call to the window, evicting the oldest entry
// once the window is full.
func (d *Detector) Record(tool string, args map[string]any, resultContent string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = append(d.window, Record{
		Tool:       tool,
		ArgsHash:   HashArgs(args),
		ResultHash: hashResult(resultContent),
		At:         time.Now(),
	})
	if len(d.window) > d.size {
		d.window = d.window[len(d.window)-d.size:]
	}
}

// Reset clears the window and warning state, for reuse across task phases.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = nil
	d.warned = make(map[string]bool)
}

// Len returns the current window occupancy.
func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.window)
}

func sigOf(tool, argsHash string) string {
	return tool + ":" + argsHash
}

func sigOfRecord(r Record) string {
	return r.Tool + ":" + r.ArgsHash
}
