// Package inject builds the dependency container request handlers resolve their collaborators from.
package inject

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectoinject/loglevel"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/iris/pkg/identity"
)

// NewContainer registers the logger and engine in a new container. Container ids are global to
// the process, so each call gets a unique id derived from name.
func NewContainer(name string, logger ectologger.Logger, engine *identity.Engine) (ectocontainer.DIContainer, error) {
	container, err := ectoinject.NewDIContainer(ectocontainer.DIContainerConfig{
		ID:                       fmt.Sprintf("%s-%s", name, uuid.NewString()),
		AllowCaptiveDependencies: true,
		AllowMissingDependencies: true,
		LoggerConfig: &ectocontainer.DIContainerLoggerConfig{
			Prefix:   "ectoinject",
			LogLevel: loglevel.WARN,
			Enabled:  true,
			LogFunc: func(ctx context.Context, level, msg string) {
				entry := logger.WithContext(ctx).WithField("component", "ectoinject")
				if level == loglevel.WARN {
					entry.Warn(msg)
					return
				}
				entry.Debug(msg)
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dependency container: %w", err)
	}

	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return nil, fmt.Errorf("failed to register logger: %w", err)
	}
	if err := ectoinject.RegisterInstance[*identity.Engine](container, engine); err != nil {
		return nil, fmt.Errorf("failed to register identity engine: %w", err)
	}

	return container, nil
}
