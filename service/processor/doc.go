// Package processor runs the worker pool that consumes step executions from
// the queue, hands them to the executor and records the outcome, retrying
// failed attempts according to the step retry settings.
package processor
