// Package rbac centralizes the role table for the feedback moderation workflow.
package rbac

type Role string
type Action string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

const (
	ActionSubmit  Action = "submit"
	ActionList    Action = "list"
	ActionReview  Action = "review"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionClear   Action = "clear"
)

// Can reports whether a role may perform an action. Submission is open to
// everyone, including anonymous callers normalized to RoleUser.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action == ActionSubmit || action == ActionList || action == ActionReview
	case RoleUser:
		return action == ActionSubmit
	default:
		return action == ActionSubmit
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleManager, RoleAdmin:
		return Role(role)
	default:
		return RoleUser
	}
}
