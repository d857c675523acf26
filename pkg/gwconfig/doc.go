/*
Package gwconfig is the configuration processor: it validates an
ExternalConfig, derives the internal tables pkg/nat, pkg/resolver and
pkg/reconciler consume, stores every applied generation in a GenId-keyed
database, and drives a transactional apply sequence against the
reconciler and the routing-daemon control channel.

The processor is single-threaded by construction (Processor.mu serializes
Apply calls) mirroring §4.J's "single-threaded queue consumer" framing;
concurrent ApplyConfig RPCs queue behind the mutex rather than racing.

File layout: external.go holds the wire-level ExternalConfig types (§6),
validate.go the syntactic and cross-field checks, derive.go the
translation into pkg/nat/pkg/resolver/pkg/reconciler inputs, store.go the
bbolt-backed generation database, and processor.go the Apply/GetCurrent/
GetGeneration orchestration.
*/
package gwconfig
