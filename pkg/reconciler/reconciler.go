package reconciler

import (
	"fmt"
	"sync"
	"time"

	"github.com/hedgehog/gwcore/pkg/log"
	"github.com/hedgehog/gwcore/pkg/metrics"
	"github.com/rs/zerolog"
)

// MaxPasses bounds how many times Converge loops before giving up and
// reporting non-convergence as an error -- a bug to surface, not a
// silent skip, per §4.I.
const MaxPasses = 30

// Reconciler drives netlink toward a required RIB. Unlike a periodic
// poll loop, Converge is invoked by pkg/gwconfig on every configuration
// apply; Start/Stop instead run a coarse background pass that catches
// drift between applies (another process deleting a link, a flaky NIC
// bouncing).
type Reconciler struct {
	logger zerolog.Logger

	mu       sync.Mutex
	required *RIB

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Reconciler with an empty required RIB; call SetRequired
// once a configuration has been derived.
func New() *Reconciler {
	return &Reconciler{
		logger:   log.WithComponent("reconciler"),
		required: NewRIB(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetRequired installs a new required RIB, read by the next Converge call.
func (r *Reconciler) SetRequired(rib *RIB) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.required = rib
}

// Converge runs Observe/Plan/Apply repeatedly until a pass produces no
// actions, or MaxPasses is exceeded. It returns the number of passes
// taken and an error if convergence was not reached.
func (r *Reconciler) Converge() (int, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

	r.mu.Lock()
	required := r.required
	r.mu.Unlock()

	for pass := 1; pass <= MaxPasses; pass++ {
		observed, err := Observe()
		if err != nil {
			return pass, fmt.Errorf("reconciler: observe: %w", err)
		}
		actions := Plan(required, observed)
		if Converged(actions) {
			metrics.ReconciliationPasses.Observe(float64(pass))
			return pass, nil
		}
		r.logger.Debug().Int("pass", pass).Int("actions", len(actions)).Msg("reconciliation pass")
		Apply(actions)
	}

	metrics.ReconciliationPasses.Observe(float64(MaxPasses))
	return MaxPasses, fmt.Errorf("reconciler: did not converge within %d passes", MaxPasses)
}

// Start begins a background loop that re-converges at a coarse interval,
// catching drift between explicit configuration applies.
func (r *Reconciler) Start(interval time.Duration) {
	go r.run(interval)
}

// Stop halts the background loop and waits for it to exit.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reconciler) run(interval time.Duration) {
	defer close(r.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", interval).Msg("reconciler background loop started")

	for {
		select {
		case <-ticker.C:
			if _, err := r.Converge(); err != nil {
				r.logger.Error().Err(err).Msg("background reconciliation failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler background loop stopped")
			return
		}
	}
}
