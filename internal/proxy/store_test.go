package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_EnsureProxyAllocatesOnceAndMarksLoaded(t *testing.T) {
	s := NewStore()
	assert.False(t, s.HasLevel(LevelPopulation))

	d1 := s.EnsureProxy(LevelPopulation, 3)
	assert.True(t, s.HasLevel(LevelPopulation))
	require.NotNil(t, d1)

	d1.Set(9, 1)
	d2 := s.EnsureProxy(LevelPopulation, 3)
	assert.Same(t, d1, d2, "EnsureProxy must not reallocate once a level is loaded")
	assert.Equal(t, 9.0, d2.At(1))
}

func TestStore_EnsureProxySumIsIndependentOfProxy(t *testing.T) {
	s := NewStore()
	s.EnsureProxy(LevelGDPSubregion, 2)
	sum := s.EnsureProxySum(LevelGDPSubregion, 2)
	require.NotNil(t, sum)
	assert.Nil(t, s.Proxy(LevelPopulation))
}

func TestStore_ApplicableDirectLevel(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Applicable(LevelPopulation))
	s.EnsureProxy(LevelPopulation, 2)
	assert.True(t, s.Applicable(LevelPopulation))
}

func TestStore_ApplicableDerivedLevelRequiresAllPrerequisites(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Applicable(LevelPeters1))

	s.EnsureProxy(LevelImportSubsector, 2)
	assert.False(t, s.Applicable(LevelPeters1), "only one of three prerequisites loaded")

	s.EnsureProxy(LevelImportSubsectorByRegionalSector, 2)
	s.EnsureProxy(LevelExportSubregionalSubsectorToRegion, 2)
	assert.True(t, s.Applicable(LevelPeters1))
}

func TestStore_ApplicableNonDerivedLevelNeverFallsBackToPrerequisites(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Applicable(LevelEqually))
}
