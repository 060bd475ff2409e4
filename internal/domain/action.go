package domain

type ActionType string

const (
	ActionTypeFile  ActionType = "file"
	ActionTypeShell ActionType = "shell"
)

func (t ActionType) Valid() bool {
	return t == ActionTypeFile || t == ActionTypeShell
}

type ActionStatus string

const (
	ActionStatusPending  ActionStatus = "pending"
	ActionStatusRunning  ActionStatus = "running"
	ActionStatusComplete ActionStatus = "complete"
	ActionStatusAborted  ActionStatus = "aborted"
	ActionStatusFailed   ActionStatus = "failed"
)

// Terminal reports whether no further transition can happen.
func (s ActionStatus) Terminal() bool {
	switch s {
	case ActionStatusComplete, ActionStatusAborted, ActionStatusFailed:
		return true
	default:
		return false
	}
}

type Artifact struct {
	ID    string
	Title string
}

type Action struct {
	Type     ActionType
	FilePath string
	Content  string
}

type ActionRecord struct {
	ID         string
	ArtifactID string
	MessageID  string
	Action     Action
	Status     ActionStatus
	Executed   bool
	Error      string
}
