package resolver

import (
	"fmt"

	"github.com/nulpointcorp/model-resolver/internal/config"
)

// Task is a logical use case with its own default model and provider.
type Task string

const (
	TaskExtract             Task = "extract"
	TaskExtractRetry        Task = "extract-retry"
	TaskReranker            Task = "reranker"
	TaskRerankerRetry       Task = "reranker-retry"
	TaskSmartScrapeThinking Task = "smart-scrape-thinking"
	TaskSmartScrapeTool     Task = "smart-scrape-tool"
)

var allTasks = []Task{
	TaskExtract,
	TaskExtractRetry,
	TaskReranker,
	TaskRerankerRetry,
	TaskSmartScrapeThinking,
	TaskSmartScrapeTool,
}

// Tasks returns every task in table order.
func Tasks() []Task {
	out := make([]Task, len(allTasks))
	copy(out, allTasks)
	return out
}

// UnknownTaskError is returned for a task name outside the table.
type UnknownTaskError struct {
	Task string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task %q", e.Task)
}

// NotFound marks the error as a missing resource for HTTP mapping.
func (e *UnknownTaskError) NotFound() bool { return true }

// ParseTask converts s into a Task.
func ParseTask(s string) (Task, error) {
	for _, t := range allTasks {
		if string(t) == s {
			return t, nil
		}
	}
	return "", &UnknownTaskError{Task: s}
}

func (t Task) ref(d config.TaskDefaults) (config.ModelRef, bool) {
	switch t {
	case TaskExtract:
		return d.Extract, true
	case TaskExtractRetry:
		return d.ExtractRetry, true
	case TaskReranker:
		return d.Reranker, true
	case TaskRerankerRetry:
		return d.RerankerRetry, true
	case TaskSmartScrapeThinking:
		return d.SmartScrapeThinking, true
	case TaskSmartScrapeTool:
		return d.SmartScrapeTool, true
	}
	return config.ModelRef{}, false
}
