package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/asyncq/internal/engine"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	registry := engine.NewRegistry()

	_, ok := registry.Resolve("ops.missing")
	assert.False(t, ok)

	registry.Register("ops.echo", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		return args, nil
	})

	op, ok := registry.Resolve("ops.echo")
	require.True(t, ok)

	out, err := op(context.Background(), []any{"x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, out)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	registry := engine.NewRegistry()
	registry.Register("ops.v", func(context.Context, []any, map[string]any) (any, error) {
		return 1, nil
	})
	registry.Register("ops.v", func(context.Context, []any, map[string]any) (any, error) {
		return 2, nil
	})

	op, ok := registry.Resolve("ops.v")
	require.True(t, ok)
	out, err := op(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out)
}

func TestRegistry_NamesSorted(t *testing.T) {
	registry := engine.NewRegistry()
	noop := func(context.Context, []any, map[string]any) (any, error) { return nil, nil }
	registry.Register("mailer.send", noop)
	registry.Register("ops.echo", noop)
	registry.Register("cleanup.prune", noop)

	assert.Equal(t, []string{"cleanup.prune", "mailer.send", "ops.echo"}, registry.Names())
}
