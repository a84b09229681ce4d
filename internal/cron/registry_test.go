package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedJob string

func (n namedJob) Name() string              { return string(n) }
func (n namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	registry := NewRegistry(namedJob("teamcart-expiry"), nil, namedJob("outbox-retention"))

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "teamcart-expiry", jobs[0].Name())
	assert.Equal(t, "outbox-retention", jobs[1].Name())

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0])
}

func TestRegistryReplacesDuplicateNames(t *testing.T) {
	first := &testJob{name: "teamcart-expiry"}
	second := &testJob{name: "teamcart-expiry"}
	registry := NewRegistry(first, namedJob("outbox-retention"))
	registry.Register(second)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, second, jobs[0])
}

func TestCadence(t *testing.T) {
	assert.Zero(t, cadence(namedJob("tick")))
	daily := &periodicJob{testJob{name: "daily", every: 42}}
	assert.EqualValues(t, 42, cadence(daily))
}
