package optimistic

import (
	"time"

	"github.com/meikuraledutech/tasktree"
)

// Domain adapts the coordinator to a concrete payload type: membership
// predicates for the two projections plus the payload transforms behind each
// mutation kind. A nil func marks the concern as unsupported for the kind.
type Domain[P any] struct {
	Starred   func(P) bool
	Scheduled func(P) bool
	Completed func(P) bool

	ToggleStar     func(P) P
	ToggleComplete func(P) P
	SetSchedule    func(P, *time.Time) P
}

// TaskDomain adapts task payloads. The starred projection holds starred,
// not-yet-completed tasks; the calendar projection holds scheduled ones.
func TaskDomain() Domain[tasktree.TaskFields] {
	return Domain[tasktree.TaskFields]{
		Starred:   tasktree.TaskFields.StarredOpen,
		Scheduled: tasktree.TaskFields.Scheduled,
		Completed: func(p tasktree.TaskFields) bool { return p.Completed },
		ToggleStar: func(p tasktree.TaskFields) tasktree.TaskFields {
			p.IsStarred = !p.IsStarred
			return p
		},
		ToggleComplete: func(p tasktree.TaskFields) tasktree.TaskFields {
			p.Completed = !p.Completed
			return p
		},
		SetSchedule: func(p tasktree.TaskFields, at *time.Time) tasktree.TaskFields {
			p.ScheduledTime = at
			return p
		},
	}
}

// TargetDomain adapts goal-target payloads. Targets carry no star or
// schedule slot; completion maps onto the achieved status.
func TargetDomain() Domain[tasktree.TargetFields] {
	return Domain[tasktree.TargetFields]{
		Scheduled: func(p tasktree.TargetFields) bool { return p.Deadline != nil },
		Completed: func(p tasktree.TargetFields) bool { return p.Status == tasktree.StatusAchieved },
		ToggleComplete: func(p tasktree.TargetFields) tasktree.TargetFields {
			if p.Status == tasktree.StatusAchieved {
				p.Status = tasktree.StatusActive
			} else {
				p.Status = tasktree.StatusAchieved
			}
			return p
		},
	}
}
