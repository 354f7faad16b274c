// Package allocator owns the execution queue and is the only service allowed
// to mutate workflow instances. It schedules ready steps, folds finished
// executions back into their instance and derives the workflow status.
package allocator
