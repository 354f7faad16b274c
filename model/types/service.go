// Package types defines the contract implemented by action services that
// workflow action steps call as "service.method".
package types

// Service is a service interface
type Service interface {
	Name() string
	Methods() Signatures
	Method(name string) (Executable, error)
}
