// Package memory keeps workflow instances in process memory.
package memory

import (
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/dao"
	"github.com/avrabe/raco/service/dao/criteria"
	"github.com/avrabe/raco/service/dao/store"
)

type Service = store.MemoryStore[string, execution.Instance]

// New returns an in-memory instance store filterable by Status.
func New() *Service {
	return store.NewMemoryStore[string, execution.Instance](
		func(i *execution.Instance) string { return i.ID },
		store.WithClone((*execution.Instance).Clone),
		store.WithFilter(func(i *execution.Instance, parameters []*dao.Parameter) bool {
			return criteria.FilterByStatus(string(i.GetStatus()), parameters)
		}),
	)
}
