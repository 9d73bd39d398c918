package watch

import (
	"fmt"
	"time"

	"github.com/mattjoyce/lexgate/internal/worker"
)

// Change is one observed difference between two health snapshots.
type Change struct {
	At       time.Time
	Worker   string
	Type     string
	Detail   string
	Activity bool
}

// Change types.
const (
	ChangeAppeared = "worker.appeared"
	ChangeState    = "worker.state"
	ChangeServed   = "worker.served"
	ChangeFailed   = "worker.failed"
	ChangeGone     = "worker.gone"
)

func workerKey(st worker.ActorStats) string {
	return st.Kind + "/" + st.Language
}

// diffStats compares two snapshots keyed by workerKey and returns what
// changed, in cur order with disappeared workers last.
func diffStats(prev map[string]worker.ActorStats, cur []worker.ActorStats, now time.Time) []Change {
	var changes []Change
	seen := make(map[string]bool, len(cur))

	for _, st := range cur {
		key := workerKey(st)
		seen[key] = true

		old, ok := prev[key]
		if !ok {
			changes = append(changes, Change{At: now, Worker: key, Type: ChangeAppeared, Detail: string(st.State)})
			continue
		}
		if old.State != st.State {
			detail := fmt.Sprintf("%s -> %s", old.State, st.State)
			if st.Cause != "" {
				detail += ": " + st.Cause
			}
			changes = append(changes, Change{At: now, Worker: key, Type: ChangeState, Detail: detail})
		}
		if d := st.Served - old.Served; d > 0 {
			changes = append(changes, Change{At: now, Worker: key, Type: ChangeServed, Detail: fmt.Sprintf("+%d", d), Activity: true})
		}
		if d := st.Failed - old.Failed; d > 0 {
			changes = append(changes, Change{At: now, Worker: key, Type: ChangeFailed, Detail: fmt.Sprintf("+%d", d), Activity: true})
		}
	}

	for key := range prev {
		if !seen[key] {
			changes = append(changes, Change{At: now, Worker: key, Type: ChangeGone})
		}
	}
	return changes
}
