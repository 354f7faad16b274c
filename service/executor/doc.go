// Package executor runs a single step execution: it builds the step from
// its definition, expands and validates the input, applies the run policy
// to human steps and raises approval requests for steps that must wait.
package executor
