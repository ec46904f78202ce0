package approval

import (
	"fmt"

	"github.com/nhle/inbox-triage/internal/model"
)

// Listener observes a transition. It receives a copy of the request.
type Listener func(*model.ApprovalRequest) error

// OnApproved registers a listener fired after a request is approved.
func (w *Workflow) OnApproved(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onApproved = append(w.onApproved, l)
}

// OnRejected registers a listener fired after a request is rejected.
func (w *Workflow) OnRejected(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onRejected = append(w.onRejected, l)
}

// OnSent registers a listener fired after the final draft is delivered by
// this workflow.
func (w *Workflow) OnSent(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onSent = append(w.onSent, l)
}

func (w *Workflow) listeners(set *[]Listener) []Listener {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Listener(nil), (*set)...)
}

// fire runs listeners in registration order. A failing listener is logged
// and the rest still run.
func (w *Workflow) fire(kind string, listeners []Listener, req *model.ApprovalRequest) {
	for i, l := range listeners {
		if err := w.invoke(l, req.Clone()); err != nil {
			listenerErrorsTotal.Inc()
			w.log.Error().
				Err(err).
				Str("event", kind).
				Int("listener", i).
				Str("request_id", req.ID).
				Msg("approval listener failed")
		}
	}
}

func (w *Workflow) invoke(l Listener, req *model.ApprovalRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l(req)
}
