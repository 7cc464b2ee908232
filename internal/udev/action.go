package udev

const (
	actionAdd    = "add"
	actionRemove = "remove"
	actionChange = "change"
)

// Action classifies a uevent. Anything the tracker does not understand
// (bind, unbind, move, ...) parses as ActionUnknown and is kept as an
// explicit arm so dispatch stays exhaustive.
type Action int

const (
	ActionUnknown Action = iota
	ActionAdd
	ActionRemove
	ActionChange
)

func ParseAction(s string) Action {
	switch s {
	case actionAdd:
		return ActionAdd
	case actionRemove:
		return ActionRemove
	case actionChange:
		return ActionChange
	default:
		return ActionUnknown
	}
}

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return actionAdd
	case ActionRemove:
		return actionRemove
	case ActionChange:
		return actionChange
	default:
		return "unknown"
	}
}
