package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatp(v float64) *float64 { return &v }

const testInputJSON = `{
	"store_no": 431,
	"item_no": 1713314,
	"region_code": "BA",
	"date_forecast": "2026-03-02",
	"case_pack_size": 6,
	"w1_shipped": 50, "w1_sold": 50, "w1_shrink_p": 0,
	"w2_shipped": 48, "w2_sold": 40, "w2_shrink_p": 0.166,
	"w3_shipped": 48, "w3_sold": 45, "w3_shrink_p": 0.0625,
	"w4_shipped": 48, "w4_sold": 42, "w4_shrink_p": 0.125,
	"store_w1_sold": 700, "store_w2_sold": 1000,
	"unit_cost": "3.15", "unit_price": "7.99"
}`

func TestParseRawRecord(t *testing.T) {
	t.Run("full record", func(t *testing.T) {
		rec, err := ParseRawRecord(RawRecord{Value: []byte(testInputJSON)})
		require.NoError(t, err)

		assert.Equal(t, 431, rec.StoreNo)
		assert.Equal(t, 1713314, rec.ItemNo)
		assert.Equal(t, "BA", rec.RegionCode)
		require.NotNil(t, rec.W1Sold)
		assert.Equal(t, 50.0, *rec.W1Sold)
		assert.Nil(t, rec.StoreW3Sold)
		assert.Equal(t, "3.15", rec.UnitCost.String())
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := ParseRawRecord(RawRecord{Value: []byte("not json")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse input record")
	})
}

func TestNewForecastLine(t *testing.T) {
	t.Run("valid record", func(t *testing.T) {
		rec, err := ParseRawRecord(RawRecord{Value: []byte(testInputJSON)})
		require.NoError(t, err)

		l, err := NewForecastLine(rec)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), l.DateForecast)
		assert.Equal(t, 50.0, l.Sold(0))
		assert.Equal(t, 700.0, l.StoreSold(0))
		require.NotNil(t, l.Weeks[0].ShrinkRatio)
		assert.Equal(t, 0.0, Float(l.Weeks[0].ShrinkRatio))
	})

	cases := []struct {
		name   string
		mutate func(*InputRecord)
		want   string
	}{
		{"zero store", func(r *InputRecord) { r.StoreNo = 0 }, "store_no"},
		{"zero item", func(r *InputRecord) { r.ItemNo = 0 }, "item_no"},
		{"missing region", func(r *InputRecord) { r.RegionCode = "" }, "region_code"},
		{"bad date", func(r *InputRecord) { r.DateForecast = "03/02/2026" }, "date_forecast"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := ParseRawRecord(RawRecord{Value: []byte(testInputJSON)})
			require.NoError(t, err)
			tc.mutate(&rec)

			_, err = NewForecastLine(rec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSoldOutLastWeek(t *testing.T) {
	l := &ForecastLine{}
	assert.False(t, l.SoldOutLastWeek(), "nil weeks are not sold out")

	l.Weeks[0] = Week{Shipped: floatp(50), Sold: floatp(50)}
	assert.True(t, l.SoldOutLastWeek())

	l.Weeks[0] = Week{Shipped: floatp(50), Sold: floatp(49)}
	assert.False(t, l.SoldOutLastWeek(), "partial sell-through does not count")
}

func TestMaxSold4W(t *testing.T) {
	l := &ForecastLine{}
	l.Weeks = [4]Week{{Sold: floatp(10)}, {Sold: floatp(25)}, {}, {Sold: floatp(5)}}
	assert.Equal(t, 25.0, l.MaxSold4W())
}
