package stage

import "context"

// Checker is implemented by workers that can report their readiness.
type Checker interface {
	HealthCheck(context.Context) Health
}
