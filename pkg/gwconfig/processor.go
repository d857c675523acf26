package gwconfig

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hedgehog/gwcore/pkg/gwerr"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/hedgehog/gwcore/pkg/log"
	"github.com/hedgehog/gwcore/pkg/metrics"
	"github.com/hedgehog/gwcore/pkg/reconciler"
	"github.com/hedgehog/gwcore/pkg/stats"
	"github.com/rs/zerolog"
)

// FrrClient is the routing-daemon control channel the processor drives
// during apply, per §4.L. pkg/frr's Client satisfies this structurally;
// the interface lives here (not in pkg/frr) so gwconfig never imports a
// package whose only purpose is wrapping a socket it owns exclusively.
type FrrClient interface {
	Probe(ctx context.Context) error
	ApplyConfig(ctx context.Context, gen gwtypes.GenId, rendered string) error
}

// Processor is the configuration processor of §4.J: a single-threaded
// queue consumer (Apply calls serialize on mu) that validates, derives,
// stores and applies configuration generations.
type Processor struct {
	mu         sync.Mutex
	store      *Store
	reconciler *reconciler.Reconciler
	frr        FrrClient
	stats      *stats.Sink
	logger     zerolog.Logger

	current    atomic.Pointer[Internal]
	currentGen gwtypes.GenId
	currentExt ExternalConfig
	hasCurrent bool
}

// NewProcessor constructs a processor around an already-open store, a
// reconciler ready to accept required RIBs, a routing-daemon client, and
// the statistics sink to reconcile against every applied configuration.
func NewProcessor(store *Store, rec *reconciler.Reconciler, frr FrrClient, sink *stats.Sink) *Processor {
	return &Processor{
		store:      store,
		reconciler: rec,
		frr:        frr,
		stats:      sink,
		logger:     log.WithComponent("gwconfig"),
	}
}

// Start applies the blank (GenId 0) configuration, bringing the system to
// a known empty state, per §4.J's startup policy. Callers that want a
// warm restart (skip re-applying blank) should not call Start.
func (p *Processor) Start(ctx context.Context) error {
	return p.Apply(ctx, gwtypes.GenIdBlank, ExternalConfig{})
}

// Apply validates, derives and commits cfg under gen, following §4.J's
// four-step apply sequence. Any failure after the duplicate/validation
// check leaves the previously applied configuration live; there is no
// partial commit.
func (p *Processor) Apply(ctx context.Context, gen gwtypes.GenId, cfg ExternalConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ConfigApplyDuration)

	result := "error"
	defer func() { metrics.ConfigApplyTotal.WithLabelValues(result).Inc() }()

	if p.hasCurrent && gen == p.currentGen {
		return &gwerr.ConfigAlreadyExists{Gen: gen}
	}
	if _, exists, err := p.store.Get(gen); err != nil {
		return &gwerr.InternalFailure{Detail: err.Error()}
	} else if exists {
		return &gwerr.ConfigAlreadyExists{Gen: gen}
	}

	if err := Validate(cfg); err != nil {
		return err
	}
	internal, err := Derive(cfg)
	if err != nil {
		return err
	}

	if err := p.store.Put(gen, cfg); err != nil {
		return err
	}

	logger := log.WithGenId(uint64(gen))

	if err := p.frr.Probe(ctx); err != nil {
		logger.Error().Err(err).Msg("routing daemon unreachable, leaving previous config live")
		return &gwerr.FrrAgentUnreachable{Detail: err.Error()}
	}

	p.reconciler.SetRequired(internal.Rib)
	passes, err := p.reconciler.Converge()
	if err != nil {
		logger.Error().Err(err).Int("passes", passes).Msg("reconciliation did not converge, leaving previous config live")
		return &gwerr.FailureApply{Detail: err.Error()}
	}

	rendered := RenderRouting(internal)
	if err := p.frr.ApplyConfig(ctx, gen, rendered); err != nil {
		logger.Error().Err(err).Msg("routing daemon rejected configuration, leaving previous config live")
		return &gwerr.FrrApplyError{Detail: err.Error()}
	}

	if err := p.store.SetCurrent(gen); err != nil {
		return &gwerr.InternalFailure{Detail: err.Error()}
	}

	p.current.Store(internal)
	p.currentGen = gen
	p.currentExt = cfg
	p.hasCurrent = true
	metrics.ConfigCurrentGeneration.Set(float64(gen))
	if p.stats != nil {
		p.stats.Reconcile(internal.VpcNames, toPeeringPairs(internal.Peerings))
	}
	logger.Info().Int("passes", passes).Msg("configuration applied")

	result = "ok"
	return nil
}

func toPeeringPairs(pairs []VpcPair) []stats.PeeringPair {
	out := make([]stats.PeeringPair, len(pairs))
	for i, p := range pairs {
		out[i] = stats.PeeringPair{Src: p.Src, Dst: p.Dst}
	}
	return out
}

// GetCurrentConfig returns the live ExternalConfig and its generation.
func (p *Processor) GetCurrentConfig() (ExternalConfig, gwtypes.GenId, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentExt, p.currentGen, p.hasCurrent
}

// GetGeneration returns the live GenId.
func (p *Processor) GetGeneration() (gwtypes.GenId, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentGen, p.hasCurrent
}

// Snapshot returns the live derived Internal configuration for a worker
// to read, the reader side of the reader-optimized handoff §5 describes.
// It may be called concurrently with Apply and never blocks.
func (p *Processor) Snapshot() *Internal {
	return p.current.Load()
}

// RenderRouting produces the textual routing-daemon configuration pushed
// through the FRR control channel: the default VRF's BGP/EVPN stanza plus
// one VRF stanza per tenant VPC with its import/export prefix lists and a
// route map matching the import list.
func RenderRouting(in *Internal) string {
	var b strings.Builder
	line := func(format string, args ...any) { fmt.Fprintf(&b, format+"\n", args...) }

	line("router bgp %d", in.Underlay.Asn)
	line(" bgp router-id %s", in.Underlay.RouterId)
	line(" address-family ipv4 unicast")
	for _, n := range in.Underlay.Ipv4.Networks {
		line("  network %s", n)
	}
	line(" exit-address-family")
	line(" address-family l2vpn evpn")
	if in.Underlay.Evpn.AdvAllVni {
		line("  advertise-all-vni")
	}
	if in.Underlay.Evpn.AdvDefaultGw {
		line("  advertise-default-gw")
	}
	if in.Underlay.Evpn.AdvSviIp {
		line("  advertise-svi-ip")
	}
	if in.Underlay.Evpn.AdvIpv4Unicast {
		line("  advertise ipv4 unicast")
	}
	line(" exit-address-family")
	for _, nb := range in.Underlay.Neighbors {
		line(" neighbor %s remote-as %d", nb.Addr, nb.RemoteAsn)
	}

	for _, vrf := range in.Routing {
		line("vrf vrf%d", vrf.Vni)
		line(" vni %d", vrf.Vni)
		for _, p := range vrf.ImportPrefixList {
			line("ip prefix-list import-%s permit %s", vrf.RouteMapName, p)
		}
		for _, p := range vrf.ExportPrefixList {
			line("ip prefix-list export-%s permit %s", vrf.RouteMapName, p)
		}
		line("route-map %s permit 10", vrf.RouteMapName)
		line(" match ip address prefix-list import-%s", vrf.RouteMapName)
	}

	return b.String()
}
