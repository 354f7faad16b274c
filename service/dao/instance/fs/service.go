// Package fs persists workflow instances under <data_dir>/instances.
package fs

import (
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/dao"
	"github.com/avrabe/raco/service/dao/criteria"
	"github.com/avrabe/raco/service/dao/store"
)

type Service = store.FileStore[execution.Instance]

// New returns an instance store rooted at basePath.
func New(basePath string, logger *logging.Logger) (*Service, error) {
	return store.NewFileStore[execution.Instance](basePath,
		func(i *execution.Instance) string { return i.ID },
		store.WithFilter(func(i *execution.Instance, parameters []*dao.Parameter) bool {
			return criteria.FilterByStatus(string(i.Status), parameters)
		}),
		store.WithLogger[execution.Instance](logger),
	)
}
