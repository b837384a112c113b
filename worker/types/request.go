package types

import (
	"fmt"

	"go.uber.org/atomic"
)

type RequestKind int

const (
	AddRemainingMail RequestKind = iota
	MoveMail
	DeleteMail
	AddMail
	SetFlags
)

func (k RequestKind) String() string {
	switch k {
	case AddRemainingMail:
		return "add-remaining-mail"
	case MoveMail:
		return "move-mail"
	case DeleteMail:
		return "delete-mail"
	case AddMail:
		return "add-mail"
	case SetFlags:
		return "set-flags"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type RequestState int32

const (
	Queued RequestState = iota
	Running
	Completed
	Cancelled
)

func (s RequestState) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Request is a job enqueued on a Queue. Its payload belongs to the job
// until it ends.
type Request struct {
	Message
	Kind    RequestKind
	Payload any

	cancelled atomic.Bool
	state     atomic.Int32
}

func (r *Request) Cancelled() bool {
	return r.cancelled.Load()
}

func (r *Request) State() RequestState {
	return RequestState(r.state.Load())
}

func (r *Request) setState(s RequestState) {
	r.state.Store(int32(s))
}

// ID returns the identifier allocated by the queue
func (r *Request) ID() int64 {
	return r.getId()
}

// Job is the worker side view of a request
type Job struct {
	req   *Request
	queue *Queue
}

func (j *Job) Request() *Request {
	return j.req
}

func (j *Job) Payload() any {
	return j.req.Payload
}

// Cancelled must be polled between expensive steps
func (j *Job) Cancelled() bool {
	return j.req.Cancelled()
}

// Feedback sends a partial result to the apply context. It returns false,
// without sending, when the request was cancelled or the queue shut down.
func (j *Job) Feedback(payload any) bool {
	return j.queue.feedback(j.req, payload)
}

// Handler implements one request kind. Run executes on a dedicated
// goroutine, Apply and End on the apply context. End is called exactly once
// per request, after every applied feedback.
type Handler struct {
	Run   func(job *Job) error
	Apply func(req *Request, payload any)
	End   func(req *Request, err error)
}
