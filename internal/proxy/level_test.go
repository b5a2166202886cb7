package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevel_DerivedOnlyForPetersLevels(t *testing.T) {
	assert.True(t, LevelPeters1.Derived())
	assert.True(t, LevelPeters2.Derived())
	assert.True(t, LevelPeters3.Derived())
	assert.False(t, LevelPopulation.Derived())
	assert.False(t, LevelExact.Derived())
	assert.False(t, LevelEqually.Derived())
}

func TestLevel_PrerequisitesForNonDerivedLevelsIsNil(t *testing.T) {
	assert.Nil(t, LevelPopulation.Prerequisites())
	assert.Nil(t, LevelExact.Prerequisites())
}

func TestLevel_PrerequisitesForPetersLevels(t *testing.T) {
	assert.ElementsMatch(t, []Level{LevelImportSubsector, LevelImportSubsectorByRegionalSector, LevelExportSubregionalSubsectorToRegion}, LevelPeters1.Prerequisites())
	assert.ElementsMatch(t, []Level{LevelImportSubregion, LevelExportSubregion, LevelImportSubregionalSubsector}, LevelPeters2.Prerequisites())
	assert.ElementsMatch(t, []Level{LevelInterregionalSubsectorInput, LevelSubregionalSubsectorInput, LevelExportSubregionalSubsectorToSubregion}, LevelPeters3.Prerequisites())
}
