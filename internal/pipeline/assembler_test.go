package pipeline_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborfresh/order-forecast/internal/domain"
	"github.com/harborfresh/order-forecast/internal/pipeline"
)

func rawFor(t *testing.T, storeNo, itemNo int, region, date string) domain.RawRecord {
	t.Helper()
	rec := domain.InputRecord{
		StoreNo:      storeNo,
		ItemNo:       itemNo,
		RegionCode:   region,
		DateForecast: date,
		CasePackSize: 6,
		W1Shipped:    fp(50), W1Sold: fp(50),
		W2Shipped: fp(40), W2Sold: fp(40),
		W3Shipped: fp(45), W3Sold: fp(45),
		W4Shipped: fp(42), W4Sold: fp(42),
	}
	value, err := json.Marshal(rec)
	require.NoError(t, err)
	return domain.RawRecord{Value: value, Topic: "forecast-input-lines"}
}

func TestAssembler_FlushesAfterQuietInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := pipeline.NewAssembler(clock, 500*time.Millisecond)

	require.NoError(t, a.Add(rawFor(t, 431, 1, "BA", "2026-03-02")))
	require.NoError(t, a.Add(rawFor(t, 431, 2, "BA", "2026-03-02")))

	assert.Empty(t, a.Ripe(), "batch must not flush while lines are arriving")

	clock.Advance(400 * time.Millisecond)
	require.NoError(t, a.Add(rawFor(t, 432, 3, "BA", "2026-03-02")))

	clock.Advance(400 * time.Millisecond)
	assert.Empty(t, a.Ripe(), "a late line resets the quiet timer")

	clock.Advance(100 * time.Millisecond)
	ripe := a.Ripe()
	require.Len(t, ripe, 1)
	assert.Equal(t, "BA", ripe[0].RegionCode)
	assert.Len(t, ripe[0].Lines, 3)
	assert.Len(t, ripe[0].Raws, 3)
	assert.Zero(t, a.PendingCount())
}

func TestAssembler_SeparateKeysFlushIndependently(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := pipeline.NewAssembler(clock, 500*time.Millisecond)

	require.NoError(t, a.Add(rawFor(t, 431, 1, "BA", "2026-03-02")))
	clock.Advance(300 * time.Millisecond)
	require.NoError(t, a.Add(rawFor(t, 700, 2, "SE", "2026-03-02")))
	require.NoError(t, a.Add(rawFor(t, 431, 3, "BA", "2026-03-03")))

	clock.Advance(200 * time.Millisecond)
	ripe := a.Ripe()
	require.Len(t, ripe, 1, "only the BA 03-02 batch has been quiet long enough")
	assert.Equal(t, "BA", ripe[0].RegionCode)
	assert.Equal(t, 2, ripe[0].Lines[0].DateForecast.Day())

	clock.Advance(300 * time.Millisecond)
	ripe = a.Ripe()
	require.Len(t, ripe, 2)
	// Oldest date first, then region.
	assert.Equal(t, 2, ripe[0].Lines[0].DateForecast.Day())
	assert.Equal(t, "SE", ripe[0].RegionCode)
	assert.Equal(t, 3, ripe[1].Lines[0].DateForecast.Day())
}

func TestAssembler_RejectsMalformedRecord(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := pipeline.NewAssembler(clock, 500*time.Millisecond)

	err := a.Add(domain.RawRecord{Value: []byte("not json")})
	require.Error(t, err)

	err = a.Add(rawFor(t, 0, 1, "BA", "2026-03-02"))
	require.Error(t, err, "store_no 0 is invalid")

	assert.Zero(t, a.PendingCount())
}

func TestAssembler_FlushAll(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := pipeline.NewAssembler(clock, time.Hour)

	require.NoError(t, a.Add(rawFor(t, 431, 1, "BA", "2026-03-02")))
	require.NoError(t, a.Add(rawFor(t, 700, 2, "SE", "2026-03-02")))

	assert.Empty(t, a.Ripe())

	all := a.FlushAll()
	require.Len(t, all, 2)
	assert.Zero(t, a.PendingCount())
}
