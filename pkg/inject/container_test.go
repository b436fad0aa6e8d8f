package inject_test

import (
	"context"
	"testing"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/iris/internal/repositories/contact"
	"github.com/Ramsey-B/iris/pkg/identity"
	"github.com/Ramsey-B/iris/pkg/inject"
)

func TestNewContainer(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	engine := identity.NewEngine(contact.NewMemoryRepository(), logger)

	container, err := inject.NewContainer("iris-test", logger, engine)
	require.NoError(t, err)

	ctx, err := ectoinject.SetActiveContainer(context.Background(), container.GetContainerID())
	require.NoError(t, err)

	ctx, gotEngine, err := ectoinject.GetContext[*identity.Engine](ctx)
	require.NoError(t, err)
	assert.Same(t, engine, gotEngine)

	_, gotLogger, err := ectoinject.GetContext[ectologger.Logger](ctx)
	require.NoError(t, err)
	assert.NotNil(t, gotLogger)
}

func TestNewContainer_IDsAreUnique(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	engine := identity.NewEngine(contact.NewMemoryRepository(), logger)

	// startup retries build the api more than once in a process
	first, err := inject.NewContainer("iris-test", logger, engine)
	require.NoError(t, err)
	second, err := inject.NewContainer("iris-test", logger, engine)
	require.NoError(t, err)

	assert.NotEqual(t, first.GetContainerID(), second.GetContainerID())
}
