package tasks

import (
	"fmt"

	"github.com/desertthunder/moodtape/internal/models"
)

// ProgressUpdate represents a progress event during a recommendation or batch run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Generate Phase = iota
	Search
	Fallback
	Rank
	Record
	Done
	Batch
)

func (p Phase) String() string {
	switch p {
	case Generate:
		return "generate"
	case Search:
		return "search"
	case Fallback:
		return "fallback"
	case Rank:
		return "rank"
	case Record:
		return "record"
	case Done:
		return "done"
	case Batch:
		return "batch"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
// A nil channel is ignored.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func generatingUpdate(model string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Generate,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Generating search strategy with %s...", model),
	}
}

func strategyUpdate(s models.Strategy) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Generate,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Strategy ready: %s (%d queries)", s.PlaylistTheme, len(s.SearchQueries)),
		Data:    s,
	}
}

func searchUpdate(step, total int, query string, eligible int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Search,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s (%d tracks so far)", step, total, query, eligible),
	}
}

func fallbackUpdate(step, total int, query string, eligible int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Fallback,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] fallback %s (%d tracks so far)", step, total, query, eligible),
	}
}

func rankUpdate(policy RankPolicy, kept, target int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Rank,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Ranked by %s: %d of %d tracks", policy, kept, target),
	}
}

func recordUpdate(runID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Record,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Saved run %s", runID),
	}
}

func doneUpdate(res *Result) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%s: %d tracks", res.Strategy.PlaylistTheme, len(res.Tracks)),
		Data:    res,
	}
}

func batchStartedUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Batch,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Running %d intents...", total),
	}
}

func batchCompletedUpdate(step, total int, name string, tracks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Batch,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d tracks)", step, total, name, tracks),
	}
}

func batchFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Batch,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
