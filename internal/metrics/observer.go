package metrics

import "github.com/mblakley/soccer-cam/internal/state"

// Observer counts stage transitions and sticky failures as the store
// persists them.
func (m *Metrics) Observer() state.Observer {
	return func(before, after state.Group) {
		if m == nil {
			return
		}
		if before.Stage != after.Stage {
			m.StageEntered(string(after.Stage))
		}
		if before.Error == nil && after.Error != nil {
			m.GroupFailed(string(after.Error.Stage), after.Error.Reason)
		}
	}
}
