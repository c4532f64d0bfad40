package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewForecastBatch(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	t.Run("stamps id and fills case size default", func(t *testing.T) {
		l := testForecastLine()
		l.CasePackSize = 0
		b, err := NewForecastBatch("BA", day, DefaultScenario(), []*ForecastLine{l})
		require.NoError(t, err)

		assert.NotEqual(t, b.BatchID.String(), "00000000-0000-0000-0000-000000000000")
		assert.Equal(t, 6, l.CasePackSize)
	})

	t.Run("rejects a line from another region", func(t *testing.T) {
		l := testForecastLine()
		l.RegionCode = "NE"
		_, err := NewForecastBatch("BA", day, DefaultScenario(), []*ForecastLine{l})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "region")
	})

	t.Run("rejects a line from another date", func(t *testing.T) {
		l := testForecastLine()
		l.DateForecast = day.AddDate(0, 0, 1)
		_, err := NewForecastBatch("BA", day, DefaultScenario(), []*ForecastLine{l})
		require.Error(t, err)
	})
}

func TestStoreGroups(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	a1 := testForecastLine()
	a2 := testForecastLine()
	a2.ItemNo = 2
	b1 := testForecastLine()
	b1.StoreNo = 7

	batch, err := NewForecastBatch("BA", day, DefaultScenario(), []*ForecastLine{a1, a2, b1})
	require.NoError(t, err)

	groups := batch.StoreGroups()
	require.Len(t, groups, 2)
	assert.Len(t, groups[431], 2)
	assert.Len(t, groups[7], 1)
	assert.Equal(t, []*ForecastLine{a1, a2}, groups[431])
}
