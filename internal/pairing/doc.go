// Package pairing enumerates candidate centrosome track pairs within a
// movie, turns each pair into a feature vector and resolves conflicting
// accepted pairs so that every track belongs to at most one spindle.
package pairing
