package job

import (
	"fmt"
	"maps"
	"time"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/id"
)

// DefaultQueue is the queue used when none is given.
const DefaultQueue = "default"

// CustomBID is the custom key holding the job's batch ID.
const CustomBID = "bid"

// Job is a unit of work as the server sees it.
type Job struct {
	JID        string         `json:"jid"`
	Type       string         `json:"jobtype"`
	Args       []any          `json:"args"`
	Queue      string         `json:"queue,omitempty"`
	At         string         `json:"at,omitempty"`
	Retry      *int           `json:"retry,omitempty"`
	ReserveFor int            `json:"reserve_for,omitempty"`
	Backtrace  int            `json:"backtrace,omitempty"`
	Custom     map[string]any `json:"custom,omitempty"`

	// Set by the server.
	CreatedAt  string   `json:"created_at,omitempty"`
	EnqueuedAt string   `json:"enqueued_at,omitempty"`
	Failure    *Failure `json:"failure,omitempty"`
}

// Failure is the server's record of a job's previous failures.
type Failure struct {
	RetryCount   int      `json:"retry_count"`
	RemainingCnt int      `json:"remaining,omitempty"`
	FailedAt     string   `json:"failed_at"`
	NextAt       string   `json:"next_at,omitempty"`
	Message      string   `json:"message,omitempty"`
	ErrorType    string   `json:"errtype,omitempty"`
	Backtrace    []string `json:"backtrace,omitempty"`
}

// New creates a job of the given type with a fresh JID on the default queue.
func New(jobtype string, args ...any) *Job {
	if args == nil {
		args = []any{}
	}
	return &Job{
		JID:   id.NewJID(),
		Type:  jobtype,
		Args:  args,
		Queue: DefaultQueue,
	}
}

// Validate checks the fields the server requires.
func (j *Job) Validate() error {
	if j.JID == "" {
		return faktory.ErrMissingJID
	}
	if j.Type == "" {
		return faktory.ErrMissingJobType
	}
	return nil
}

// Clone returns a copy of j that shares no mutable state with it. Args
// and Custom are deep-copied.
func (j *Job) Clone() *Job {
	c := *j
	if j.Args == nil {
		c.Args = []any{}
	} else {
		c.Args = deepCopy(j.Args).([]any)
	}
	if j.Custom != nil {
		c.Custom = deepCopyMap(j.Custom)
	}
	if j.Retry != nil {
		r := *j.Retry
		c.Retry = &r
	}
	if j.Failure != nil {
		f := *j.Failure
		c.Failure = &f
	}
	return &c
}

// SetCustom sets a custom metadata key, allocating the map on first use.
func (j *Job) SetCustom(key string, value any) {
	if j.Custom == nil {
		j.Custom = make(map[string]any)
	}
	j.Custom[key] = value
}

// GetCustom returns a custom metadata value.
func (j *Job) GetCustom(key string) (any, bool) {
	v, ok := j.Custom[key]
	return v, ok
}

// BID returns the batch ID the job belongs to, or "".
func (j *Job) BID() string {
	bid, _ := j.Custom[CustomBID].(string)
	return bid
}

// ScheduleAt sets At when t is in the future. A past or zero t clears it,
// so the job is pushed for immediate execution.
func (j *Job) ScheduleAt(t time.Time) {
	if t.IsZero() || !t.After(time.Now()) {
		j.At = ""
		return
	}
	j.At = t.UTC().Format(time.RFC3339Nano)
}

// String identifies the job in logs.
func (j *Job) String() string {
	return fmt.Sprintf("%s(%s)", j.Type, j.JID)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

// mergeCustom deep-merges override onto a copy of base. Values in
// override win; nested maps are merged key by key.
func mergeCustom(base, override map[string]any) map[string]any {
	if base == nil && override == nil {
		return nil
	}
	out := make(map[string]any, len(base)+len(override))
	maps.Copy(out, deepCopyMap(base))
	for k, v := range override {
		if bm, ok := out[k].(map[string]any); ok {
			if om, ok := v.(map[string]any); ok {
				out[k] = mergeCustom(bm, om)
				continue
			}
		}
		out[k] = deepCopy(v)
	}
	return out
}
