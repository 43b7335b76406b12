package execution

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/xhit/go-str2duration/v2"
)

// AsyncStatus is the progress reported by a block whose work continues
// after the action returned.
type AsyncStatus struct {
	Progress              *float64  `json:"progress,omitempty"`
	CurrentStep           string    `json:"currentStep,omitempty"`
	EstimatedCompletionMs *int64    `json:"estimatedCompletionMs,omitempty"`
	JobID                 string    `json:"jobId,omitempty"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

var pendingStatuses = map[string]struct{}{
	"queued":      {},
	"pending":     {},
	"processing":  {},
	"running":     {},
	"in_progress": {},
	"in-progress": {},
	"started":     {},
	"accepted":    {},
	"submitted":   {},
	"scheduled":   {},
}

var pendingMessage = regexp.MustCompile(
	`(?i)\b(queued|processing|in progress|running|pending|started|accepted|submitted|will be (processed|completed|sent))\b`,
)

var (
	statusPaths   = []string{"status", "state", "job.status"}
	jobIDPaths    = []string{"jobId", "job_id", "taskId", "task_id", "job.id"}
	messagePaths  = []string{"message", "detail"}
	progressPaths = []string{"progress", "percentComplete", "percent", "job.progress"}
	stepPaths     = []string{"currentStep", "step", "stage"}
	etaPaths      = []string{"estimatedCompletionMs", "estimatedCompletion", "eta", "etaMs"}
)

// DetectAsync reports whether a successful output describes work that is
// still in flight. Either the status field uses the pending vocabulary, or a
// job/task id is present together with a pending-sounding message.
func DetectAsync(output map[string]any, now time.Time) (*AsyncStatus, bool) {
	if len(output) == 0 {
		return nil, false
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return nil, false
	}
	doc := gjson.ParseBytes(raw)
	jobID := first(doc, jobIDPaths).String()
	status := strings.ToLower(strings.TrimSpace(first(doc, statusPaths).String()))
	_, pending := pendingStatuses[status]
	if !pending {
		if jobID == "" || !pendingMessage.MatchString(first(doc, messagePaths).String()) {
			return nil, false
		}
	}
	st := &AsyncStatus{
		JobID:       jobID,
		CurrentStep: first(doc, stepPaths).String(),
		UpdatedAt:   now,
	}
	if p := first(doc, progressPaths); p.Type == gjson.Number {
		v := normalizeProgress(p.Float())
		st.Progress = &v
	}
	if eta, ok := parseETA(first(doc, etaPaths)); ok {
		st.EstimatedCompletionMs = &eta
	}
	return st, true
}

func first(doc gjson.Result, paths []string) gjson.Result {
	for _, path := range paths {
		if r := doc.Get(path); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

// normalizeProgress accepts fractions or percentages and clamps to [0,1].
func normalizeProgress(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v /= 100
	}
	return math.Max(0, math.Min(1, v))
}

// parseETA reads milliseconds from a number, or a duration string such as
// "2m30s" or "1d".
func parseETA(r gjson.Result) (int64, bool) {
	switch r.Type {
	case gjson.Number:
		if r.Int() < 0 {
			return 0, false
		}
		return r.Int(), true
	case gjson.String:
		d, err := str2duration.ParseDuration(strings.TrimSpace(r.String()))
		if err != nil || d < 0 {
			return 0, false
		}
		return d.Milliseconds(), true
	default:
		return 0, false
	}
}
