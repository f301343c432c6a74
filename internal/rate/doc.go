// Package rate enforces per-(route, method, identity) admission control with
// multi-tier thresholds over the storage counting primitive.
//
// A rule's tiers are checked in order and ALL must have remaining capacity;
// each tier counts in its own independent window. Identity extraction is
// pluggable (per IP, per user, per device, global) and decides the fairness
// granularity; skip predicates bypass checks without touching counters.
//
// Counter keys hash route, method, and identity together, so no raw client
// identity ever appears in the store.
package rate
