// Package step turns workflow step definitions into executable steps.
//
// Four kinds exist: human input and approval steps wait for a person,
// code generation steps render a text/template, and action steps call a
// registered action service. Step input is expanded from predecessor
// outputs and globals with ${...} references and validated against the
// step's JSON schema before execution.
package step
