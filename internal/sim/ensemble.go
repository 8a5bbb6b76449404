package sim

import (
	"context"
	"sync"

	"github.com/san-kum/meshsim/internal/dynamo"
)

// Member is one run of an ensemble.
type Member struct {
	Config  Config
	Source  EventSource
	Metrics func() []dynamo.Metric
}

// MemberResult is the final state and metric values of one member.
type MemberResult struct {
	Final   Snapshot
	Metrics map[string]float64
}

// Ensemble runs independent simulations concurrently. Each member owns its
// buffers, so members never share state.
type Ensemble struct {
	members []Member
	opts    []Option
}

func NewEnsemble(members []Member, opts ...Option) *Ensemble {
	return &Ensemble{members: members, opts: opts}
}

func (e *Ensemble) Run(ctx context.Context, ticks int, dt float64) ([]MemberResult, error) {
	results := make([]MemberResult, len(e.members))
	errs := make([]error, len(e.members))

	var wg sync.WaitGroup
	for i := range e.members {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			m := e.members[idx]
			s, err := New(m.Config, e.opts...)
			if err != nil {
				errs[idx] = err
				return
			}
			defer s.Shutdown()

			if m.Metrics != nil {
				for _, metric := range m.Metrics() {
					s.AddMetric(metric)
				}
			}

			final, err := s.Run(ctx, ticks, dt, m.Source)
			results[idx] = MemberResult{Final: final, Metrics: s.Metrics()}
			errs[idx] = err
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
