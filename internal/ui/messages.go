package ui

// Action is a decision requested from a view.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ActionMsg asks the root model to decide a request.
type ActionMsg struct {
	Action    Action
	RequestID string
}

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}
