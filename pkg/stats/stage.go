package stats

import (
	"iter"

	"github.com/hedgehog/gwcore/pkg/gwpacket"
	"github.com/hedgehog/gwcore/pkg/pipeline"
)

// Stage returns a pipeline stage that records every packet's terminal
// disposition into sink and passes it through unchanged. It belongs right
// before pipeline.Enforce, so it observes dropped packets before they are
// discarded.
func (s *Sink) Stage() pipeline.Stage {
	return func(in iter.Seq[*gwpacket.Packet]) iter.Seq[*gwpacket.Packet] {
		return func(yield func(*gwpacket.Packet) bool) {
			for pkt := range in {
				s.Record(pkt)
				if !yield(pkt) {
					return
				}
			}
		}
	}
}
