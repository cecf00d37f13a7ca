package registry

import (
	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/backends/httpfs"
	"github.com/ebogdum/cloudbox/backends/localfs"
	"github.com/ebogdum/cloudbox/backends/memory"
	"github.com/ebogdum/cloudbox/backends/s3"
)

// RegisterBuiltins registers the providers shipped with cloudbox. Kinds that
// are already registered keep their existing factory.
func RegisterBuiltins(r *Registry, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	r.Register(localfs.Kind, func() (backends.Provider, error) {
		return localfs.New(logger.Named("localfs")), nil
	})
	r.Register(s3.Kind, func() (backends.Provider, error) {
		return s3.New(logger.Named("s3")), nil
	})
	r.Register(httpfs.Kind, func() (backends.Provider, error) {
		return httpfs.New(logger.Named("httpfs")), nil
	})
	r.Register(memory.Kind, func() (backends.Provider, error) {
		return memory.New(logger.Named("memory")), nil
	})
}
