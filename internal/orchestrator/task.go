package orchestrator

import (
	"github.com/google/uuid"

	"pearlgen/internal/identity"
	"pearlgen/internal/signup"
)

// Task is one provisioning attempt for one identity. Retries are new Task
// values carrying the same identity and an incremented attempt count,
// never a mutated task, so the task history stays auditable.
type Task struct {
	ID       string
	Identity identity.Identity
	Attempt  int
}

// newTask creates the first attempt for an identity.
func newTask(id identity.Identity) Task {
	return Task{ID: uuid.NewString(), Identity: id, Attempt: 0}
}

// retryOf derives the follow-up attempt for a failed task.
func retryOf(t Task) Task {
	return Task{ID: uuid.NewString(), Identity: t.Identity, Attempt: t.Attempt + 1}
}

// Report is the per-run outcome summary surfaced to the operator.
type Report struct {
	Succeeded            int
	PermanentlyFailed    int
	InProgressAtShutdown int
	FailureReasons       map[signup.FailureReason]int
}

func newReport() Report {
	return Report{FailureReasons: make(map[signup.FailureReason]int)}
}
