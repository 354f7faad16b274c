package memory

import (
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/dao"
	"github.com/avrabe/raco/service/dao/criteria"
	"github.com/avrabe/raco/service/dao/store"
)

// Service keeps step executions in memory; Save and Load work on clones.
type Service = store.MemoryStore[string, execution.Execution]

// New returns an in-memory execution store filterable by State.
func New() *Service {
	return store.NewMemoryStore[string, execution.Execution](
		func(e *execution.Execution) string { return e.ID },
		store.WithClone((*execution.Execution).Clone),
		store.WithFilter(filter),
	)
}

func filter(e *execution.Execution, parameters []*dao.Parameter) bool {
	return criteria.FilterByStatus(string(e.GetState()), parameters) &&
		criteria.FilterBy(criteria.InstanceParameter, e.InstanceID, parameters)
}

var _ dao.Service[string, execution.Execution] = (*Service)(nil)
