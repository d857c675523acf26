package worker

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedgehog/gwcore/pkg/flow"
	"github.com/hedgehog/gwcore/pkg/gwconfig"
	"github.com/hedgehog/gwcore/pkg/gwpacket"
	"github.com/hedgehog/gwcore/pkg/log"
	"github.com/hedgehog/gwcore/pkg/pipeline"
	"github.com/hedgehog/gwcore/pkg/stats"
	"github.com/rs/zerolog"
)

// DefaultRebuildInterval bounds how stale a Worker's pipeline can get
// relative to the processor's current configuration generation.
const DefaultRebuildInterval = 500 * time.Millisecond

// DefaultBatchSize is the maximum number of frames one ReadBatch call
// pulls off a Nic before the pipeline gets to run over them.
const DefaultBatchSize = 128

// Config wires a Worker to the interfaces it owns, the rest of the
// interface table it may need to transmit onto, and the shared state a
// pipeline is built from.
type Config struct {
	// Proc is polled for the current configuration generation.
	Proc *gwconfig.Processor
	// Ingress maps this worker's interfaces to their VPCs.
	Ingress pipeline.IngressConfig
	// Nics are the interfaces this worker reads from.
	Nics []Nic
	// AllNics is the full interface table, keyed by name, used to
	// transmit a packet whose Oif belongs to a different worker.
	AllNics map[string]Nic
	// Flows is the connection-tracking table, shared across every
	// worker so a flow is recognized no matter which interface its
	// packets arrive on.
	Flows *flow.Table
	// Sink records delivered/dropped traffic. May be nil.
	Sink *stats.Sink
	// IdleTimeout overrides the stateful NAT stage's default mapping
	// lifetime. Zero selects pipeline.DefaultIdleTimeout.
	IdleTimeout time.Duration
	// RebuildInterval overrides DefaultRebuildInterval.
	RebuildInterval time.Duration
	// BatchSize overrides DefaultBatchSize.
	BatchSize int
}

// Worker owns one pipeline instance and one goroutine per interface
// reading frames into it. It never mutates configuration state: it only
// ever reads Proc.Snapshot() and rebuilds its own pipeline in response.
type Worker struct {
	id  int
	cfg Config

	pipeline atomic.Pointer[pipeline.Pipeline]
	lastGen  *gwconfig.Internal

	logger zerolog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Worker. Call Start to begin processing.
func New(id int, cfg Config) *Worker {
	if cfg.RebuildInterval <= 0 {
		cfg.RebuildInterval = DefaultRebuildInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Worker{
		id:     id,
		cfg:    cfg,
		logger: log.WithComponent("worker").With().Int("worker", id).Logger(),
		stopCh: make(chan struct{}),
	}
}

// Start builds the initial pipeline and launches the rebuild loop and
// one reader goroutine per interface. It returns once the first
// pipeline is in place.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.rebuild(); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.rebuildLoop(ctx)

	for _, nic := range w.cfg.Nics {
		w.wg.Add(1)
		go w.readLoop(ctx, nic)
	}
	return nil
}

// Stop signals every goroutine to exit and waits for them.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Worker) rebuildLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.RebuildInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.rebuild(); err != nil {
				w.logger.Error().Err(err).Msg("rebuild pipeline")
			}
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// rebuild replaces the worker's pipeline if the processor's current
// generation differs from the one it was last built from. A nil
// snapshot (no configuration applied yet) is not an error: the worker
// simply keeps whatever pipeline it already has, or none at all.
func (w *Worker) rebuild() error {
	in := w.cfg.Proc.Snapshot()
	if in == nil || in == w.lastGen {
		return nil
	}

	pl, err := buildPipeline(in, w.cfg.Ingress, w.cfg.Flows, w.cfg.Sink, w.cfg.IdleTimeout)
	if err != nil {
		return err
	}
	w.pipeline.Store(pl)
	w.lastGen = in
	return nil
}

func (w *Worker) readLoop(ctx context.Context, nic Nic) {
	defer w.wg.Done()
	defer nic.Close()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		bufs, err := nic.ReadBatch(w.cfg.BatchSize)
		if err != nil {
			w.logger.Warn().Err(err).Str("iface", nic.Name()).Msg("read batch")
			continue
		}

		pl := w.pipeline.Load()
		if pl == nil {
			continue
		}

		for pkt := range pl.Run(framesSeq(bufs, nic.Name(), w.logger)) {
			w.transmit(pkt)
		}
	}
}

// framesSeq decodes a batch of raw frames read off iif into the
// pipeline's packet iterator. A frame that fails to parse as Ethernet
// is dropped before it ever enters the pipeline -- there is no Reason
// for a packet that was never successfully built.
func framesSeq(bufs [][]byte, iif string, logger zerolog.Logger) iter.Seq[*gwpacket.Packet] {
	return func(yield func(*gwpacket.Packet) bool) {
		for _, buf := range bufs {
			pkt, err := gwpacket.Parse(buf)
			if err != nil {
				logger.Debug().Err(err).Str("iif", iif).Msg("drop unparseable frame")
				continue
			}
			pkt.Iif = iif
			if !yield(pkt) {
				return
			}
		}
	}
}

func (w *Worker) transmit(pkt *gwpacket.Packet) {
	if pkt.Oif == "" {
		return
	}
	nic, ok := w.cfg.AllNics[pkt.Oif]
	if !ok {
		w.logger.Debug().Str("oif", pkt.Oif).Msg("egress: unknown interface")
		return
	}

	raw, err := pkt.Serialize()
	if err != nil {
		w.logger.Debug().Err(err).Str("oif", pkt.Oif).Msg("egress: serialize")
		return
	}
	if err := nic.Write(raw); err != nil {
		w.logger.Warn().Err(err).Str("oif", pkt.Oif).Msg("egress: write")
	}
}
