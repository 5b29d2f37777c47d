package dispatch

import (
	"time"

	"github.com/mr1hm/guard-dispatch/internal/models"
)

// Fanout says how an incident is announced. MaxWanted is ignored for
// broadcasts, which reach every on-duty guard.
type Fanout struct {
	Kind      models.AlertKind
	MaxWanted int
	Deadline  time.Duration // zero for broadcasts
}

type Policy struct {
	ResponseTimeout time.Duration
}

var assignmentCounts = map[models.Priority]int{
	models.PriorityCritical: 5,
	models.PriorityHigh:     3,
	models.PriorityMedium:   2,
	models.PriorityLow:      1,
}

func (p Policy) For(inc models.Incident) Fanout {
	if inc.SystemWide {
		return Fanout{Kind: models.AlertBroadcast}
	}
	n, ok := assignmentCounts[inc.Priority]
	if !ok {
		n = 1
	}
	return Fanout{Kind: models.AlertAssignment, MaxWanted: n, Deadline: p.ResponseTimeout}
}

// Replacement is the fanout used after a decline or an expiry: one more
// assignment offer with a fresh deadline.
func (p Policy) Replacement() Fanout {
	return Fanout{Kind: models.AlertAssignment, MaxWanted: 1, Deadline: p.ResponseTimeout}
}
