// Package model contains the in-memory representation of workflow
// definitions used by the raco engine.
//
// A workflow is typically loaded from a YAML or JSON document into the
// structures defined here and in the `graph` sub-package. Steps are ordered by
// explicit dependencies and the resulting graph must be acyclic.
package model
