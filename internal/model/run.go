// Package model defines the data structures used throughout the application.
package model

import "time"

// RunStatus is where a submission is in its single pass through the service.
//
//	created → validating → rejected
//	                     → validated → executing → succeeded
//	                                             → failed
type RunStatus string

const (
	RunCreated    RunStatus = "created"
	RunValidating RunStatus = "validating"
	RunRejected   RunStatus = "rejected"
	RunValidated  RunStatus = "validated"
	RunExecuting  RunStatus = "executing"
	RunSucceeded  RunStatus = "succeeded"
	RunFailed     RunStatus = "failed"
)

var runTransitions = map[RunStatus][]RunStatus{
	RunCreated:    {RunValidating},
	RunValidating: {RunRejected, RunValidated},
	RunValidated:  {RunExecuting},
	RunExecuting:  {RunSucceeded, RunFailed},
}

// CanTransition reports whether a run in status s may move to next.
// Terminal statuses allow nothing.
func (s RunStatus) CanTransition(next RunStatus) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s RunStatus) Terminal() bool {
	return s == RunRejected || s == RunSucceeded || s == RunFailed
}

// RunError is the failure recorded on a rejected or failed run.
type RunError struct {
	Kind    string `json:"kind"` // syntax_error, disallowed_import, execution_error, timeout, ...
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Run is one code submission and what became of it.
type Run struct {
	ID       string    `json:"id"`
	OwnerID  string    `json:"ownerId,omitempty"`
	Code     string    `json:"code"`
	Status   RunStatus `json:"status"`
	Output   string    `json:"output"`
	FilePath string    `json:"filePath,omitempty"` // relative to the output root
	ExitCode int       `json:"exitCode"`
	Error    *RunError `json:"error,omitempty"`
	// Duration of the execution step only.
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}
