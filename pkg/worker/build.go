package worker

import (
	"time"

	"github.com/hedgehog/gwcore/pkg/flow"
	"github.com/hedgehog/gwcore/pkg/gwconfig"
	"github.com/hedgehog/gwcore/pkg/pipeline"
	"github.com/hedgehog/gwcore/pkg/stats"
)

// buildPipeline assembles the full packet pipeline for one configuration
// generation: classification, destination-VPC resolution, stateless and
// stateful NAT, IP forwarding, egress marking and statistics recording,
// in that order, finished off with Enforce so a dropped packet never
// reaches a Nic's Write. idleTimeout of zero selects
// pipeline.DefaultIdleTimeout.
func buildPipeline(in *gwconfig.Internal, ingress pipeline.IngressConfig, flows *flow.Table, sink *stats.Sink, idleTimeout time.Duration) (*pipeline.Pipeline, error) {
	routes, err := loadRouteTables(in)
	if err != nil {
		return nil, err
	}

	stages := []pipeline.Stage{
		pipeline.Classify(ingress),
		pipeline.ResolveDstVpc(in.Resolver),
		pipeline.StatelessNat(in.Nat),
		pipeline.StatefulNat(flows, in.Pools, idleTimeout),
		pipeline.IpForward(routes),
		pipeline.Egress(),
	}
	if sink != nil {
		stages = append(stages, sink.Stage())
	}
	stages = append(stages, pipeline.Enforce())

	return pipeline.New("dataplane", stages...), nil
}
