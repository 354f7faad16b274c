// Package fs persists step executions as JSON documents through afs.
package fs

import (
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/dao"
	"github.com/avrabe/raco/service/dao/criteria"
	"github.com/avrabe/raco/service/dao/store"
)

type Service = store.FileStore[execution.Execution]

// New returns an execution store rooted at basePath.
func New(basePath string, logger *logging.Logger) (*Service, error) {
	return store.NewFileStore[execution.Execution](basePath,
		func(e *execution.Execution) string { return e.ID },
		store.WithFilter(func(e *execution.Execution, parameters []*dao.Parameter) bool {
			return criteria.FilterByStatus(string(e.State), parameters) &&
				criteria.FilterBy(criteria.InstanceParameter, e.InstanceID, parameters)
		}),
		store.WithLogger[execution.Execution](logger),
	)
}
