package rollout

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// Logger is the minimal printf-style logging contract.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Observer receives structured events during a rolling upgrade run.
type Observer interface {
	Logger

	// Event emits a structured run event.
	Event(event Event)

	// Progress reports one polling attempt for a wait phase. total is zero
	// for unbounded waits.
	Progress(phase string, attempt, total int)
}

// Event represents a structured rollout event.
type Event struct {
	Type      EventType
	Node      string
	Step      string
	Message   string
	Timestamp time.Time
}

// EventType represents the type of rollout event.
type EventType string

const (
	// EventRunStarted indicates the rolling upgrade run has started.
	EventRunStarted EventType = "run.started"
	// EventRunCompleted indicates the run finished with every node processed.
	EventRunCompleted EventType = "run.completed"
	// EventRunFailed indicates the run aborted.
	EventRunFailed EventType = "run.failed"

	// EventNodeStarted indicates processing of a node has started.
	EventNodeStarted EventType = "node.started"
	// EventNodeCompleted indicates a node finished processing.
	EventNodeCompleted EventType = "node.completed"
	// EventNodeFailed indicates a node failed and the run will abort.
	EventNodeFailed EventType = "node.failed"

	// EventStepStarted indicates a step of the node sequence has started.
	EventStepStarted EventType = "step.started"
	// EventStepSkipped indicates a step was not required for this node.
	EventStepSkipped EventType = "step.skipped"
	// EventStepWarning indicates a non-fatal step problem.
	EventStepWarning EventType = "step.warning"
)

// ConsoleObserver implements Observer using the standard log package.
type ConsoleObserver struct {
	// Verbose widens progress reporting from one dot per attempt to a full
	// line per attempt.
	Verbose bool
}

// NewConsoleObserver creates a new console-based observer.
func NewConsoleObserver(verbose bool) *ConsoleObserver {
	return &ConsoleObserver{Verbose: verbose}
}

// Printf implements Logger.
func (o *ConsoleObserver) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

// Event implements Observer.
func (o *ConsoleObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var parts []string
	parts = append(parts, string(event.Type))
	if event.Node != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Node))
	}
	if event.Step != "" {
		parts = append(parts, fmt.Sprintf("step=%s", event.Step))
	}
	if event.Message != "" {
		parts = append(parts, event.Message)
	}

	log.Print(strings.Join(parts, " "))
}

// Progress implements Observer.
func (o *ConsoleObserver) Progress(phase string, attempt, total int) {
	if !o.Verbose {
		return
	}
	if total == 0 {
		log.Printf("[%s] attempt %d", phase, attempt)
		return
	}
	log.Printf("[%s] attempt %d/%d", phase, attempt, total)
}
