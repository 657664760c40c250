package training

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate(t *testing.T) {
	d := MustParseDate("2024-01-31")
	assert.Equal(t, time.Wednesday, d.Weekday())
	assert.Equal(t, "2024-02-01", d.AddDays(1).String())
	assert.Equal(t, "2024-01", d.Month().String())
	assert.Equal(t, 3, d.DaysUntil(MustParseDate("2024-02-03")))
	assert.Equal(t, -1, d.Compare(d.AddDays(1)))
	assert.Equal(t, "2024-01-31", DateOf(time.Date(2024, 1, 31, 23, 59, 0, 0, time.FixedZone("MSK", 3*3600))).String())

	_, err := ParseDate("31.01.2024")
	assert.Error(t, err)
	assert.Empty(t, Date{}.String())
}

func TestDate_JSON(t *testing.T) {
	type row struct {
		Date  Date  `json:"date"`
		Month Month `json:"month"`
	}
	in := row{Date: MustParseDate("2024-03-05"), Month: MustParseMonth("2024-03")}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-03-05","month":"2024-03"}`, string(data))

	var out row
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.Date.Equal(in.Date))
	assert.True(t, out.Month.Equal(in.Month))

	var empty row
	require.NoError(t, json.Unmarshal([]byte(`{"date":"","month":""}`), &empty))
	assert.True(t, empty.Date.IsZero())
	assert.Error(t, json.Unmarshal([]byte(`{"date":"2024-13-01"}`), &empty))
}

func TestMonth_Bounds(t *testing.T) {
	feb := MustParseMonth("2024-02")
	assert.Equal(t, "2024-02-01", feb.FirstDay().String())
	assert.Equal(t, "2024-02-29", feb.LastDay().String())
	assert.True(t, feb.Contains(MustParseDate("2024-02-29")))
	assert.False(t, feb.Contains(MustParseDate("2024-03-01")))
}

func TestNewRecurrence(t *testing.T) {
	r, err := NewRecurrence([]time.Weekday{time.Sunday, time.Wednesday, time.Monday, time.Wednesday}, 7)
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Sunday}, r.Days)
	assert.Equal(t, "07:00", r.TimeLabel())

	_, err = NewRecurrence(nil, 7)
	assert.Error(t, err)
	_, err = NewRecurrence([]time.Weekday{time.Monday}, 24)
	assert.Error(t, err)
	_, err = NewRecurrence([]time.Weekday{9}, 10)
	assert.Error(t, err)
}

func TestRecurrence_NextOnOrAfter(t *testing.T) {
	r := Recurrence{Days: []time.Weekday{time.Tuesday, time.Saturday}, Hour: 10}
	monday := MustParseDate("2024-01-01")

	next, ok := r.NextOnOrAfter(monday)
	require.True(t, ok)
	assert.Equal(t, "2024-01-02", next.String())

	next, ok = r.NextOnOrAfter(MustParseDate("2024-01-06"))
	require.True(t, ok)
	assert.Equal(t, "2024-01-06", next.String())

	_, ok = Recurrence{}.NextOnOrAfter(monday)
	assert.False(t, ok)
	assert.Equal(t, "2024-01-01__09", SlotKey(monday, 9))
}

func TestBuildPackage(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		kind      Kind
		category  Category
		count     int
		people    int
		price     float64
		perIncome float64
	}{
		{"personal I", KindPersonal, CategoryI, 5, 1, 6750, 675},
		{"personal III", KindPersonal, CategoryIII, 10, 1, 16800, 840},
		{"unknown category falls back", KindPersonal, "IV", 1, 1, 1500, 750},
		{"split per person", KindSplit, CategoryII, 10, 2, 20000, 1000},
		{"mini group", KindMiniGroup, CategoryI, 5, 4, 16500, 1650},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := BuildPackage(tt.kind, tt.category, tt.count, tt.people, 0, now)
			require.NoError(t, err)
			assert.Equal(t, tt.price, pkg.Price())
			assert.Equal(t, tt.perIncome, pkg.CoachIncomePerSession())
			assert.Equal(t, float64(DefaultCoachPercent), pkg.CoachPercent)
		})
	}

	_, err := BuildPackage(KindPersonal, CategoryI, 7, 1, 50, now)
	assert.Error(t, err)
	_, err = BuildPackage("yoga", CategoryI, 5, 1, 50, now)
	assert.Error(t, err)
}

func TestPackageOptions_DerivedLists(t *testing.T) {
	prices := func(opts []PackageOption, perPerson bool) []float64 {
		out := make([]float64, 0, len(opts))
		for _, o := range opts {
			if perPerson {
				out = append(out, o.PricePerPerson)
			} else {
				out = append(out, o.TotalPrice)
			}
		}
		return out
	}

	assert.Equal(t, []float64{1500, 6750, 12000, 27500}, prices(PackageOptions(KindPersonal, CategoryI), false))
	assert.Equal(t, []float64{1800, 8100, 14400, 33000}, prices(PackageOptions(KindPersonal, CategoryII), false))
	assert.Equal(t, []float64{2100, 9450, 16800, 38500}, prices(PackageOptions(KindPersonal, CategoryIII), false))
	assert.Equal(t, []float64{1200, 5500, 10000, 24000}, prices(PackageOptions(KindSplit, CategoryIII), true))
	assert.Equal(t, []float64{900, 4125, 7500, 18000}, prices(PackageOptions(KindMiniGroup, CategoryI), true))
}

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, 333.33, RoundMoney(1000.0/3))
	assert.Equal(t, 0.0, RoundMoney(0.004))
}
