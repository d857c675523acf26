package pipeline

import (
	"iter"

	"github.com/hedgehog/gwcore/pkg/gwpacket"
)

// Stage transforms a stream of packets into another stream. A stage
// that drops a packet simply does not yield it; one that wants to
// observe dropped packets without forwarding them checks IsDone/keep
// itself rather than relying on the caller.
type Stage func(iter.Seq[*gwpacket.Packet]) iter.Seq[*gwpacket.Packet]

// Pipeline is an ordered composition of stages.
type Pipeline struct {
	name   string
	stages []Stage
}

// New builds a pipeline that applies stages in order.
func New(name string, stages ...Stage) *Pipeline {
	return &Pipeline{name: name, stages: stages}
}

// Name returns the pipeline's identifying label, used in stats and logs.
func (p *Pipeline) Name() string { return p.name }

// Run chains every stage over in, returning the resulting iterator
// without consuming it -- no stage's work happens until the caller
// ranges over the result.
func (p *Pipeline) Run(in iter.Seq[*gwpacket.Packet]) iter.Seq[*gwpacket.Packet] {
	out := in
	for _, stage := range p.stages {
		out = stage(out)
	}
	return out
}

// Enforce is a stage that drops any packet whose Enforce() fails
// (done with a drop reason and keep not set). Pipelines typically place
// it as the final stage so diagnostic-only packets never reach the
// egress stage's serialization path.
func Enforce() Stage {
	return func(in iter.Seq[*gwpacket.Packet]) iter.Seq[*gwpacket.Packet] {
		return func(yield func(*gwpacket.Packet) bool) {
			for pkt := range in {
				kept, ok := pkt.Enforce()
				if !ok {
					continue
				}
				if !yield(kept) {
					return
				}
			}
		}
	}
}
