package scenario

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStages(t *testing.T) {
	s := DefaultStages()

	require.Len(t, s, 3)
	assert.Equal(t, 60*time.Second, s.Total())
	assert.Equal(t, []int{100, 200, 0}, []int{s[0].Target, s[1].Target, s[2].Target})
	assert.Equal(t, 200, s.MaxTarget())
	assert.NoError(t, s.Validate())
}

func TestStages_TargetAt(t *testing.T) {
	s := DefaultStages()

	tests := []struct {
		at   time.Duration
		want int
	}{
		{-time.Second, 0},
		{0, 0},
		{time.Second, 5},
		{10 * time.Second, 50},
		{20 * time.Second, 100},
		{30 * time.Second, 150},
		{40 * time.Second, 200},
		{50 * time.Second, 100},
		{59 * time.Second, 10},
		{60 * time.Second, 0},
		{90 * time.Second, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.TargetAt(tt.at), "at %s", tt.at)
	}
}

func TestStages_ZeroDurationJumps(t *testing.T) {
	s := Stages{{Duration: 0, Target: 10}, {Duration: 10 * time.Second, Target: 10}}
	assert.Equal(t, 10, s.TargetAt(0))
	assert.Equal(t, 10, s.TargetAt(5*time.Second))
}

func TestStages_Validate(t *testing.T) {
	assert.Error(t, Stages{}.Validate())
	assert.Error(t, Stages{{Duration: -time.Second, Target: 1}}.Validate())
	assert.Error(t, Stages{{Duration: time.Second, Target: -1}}.Validate())
	assert.Error(t, Stages{{Duration: 0, Target: 1}}.Validate())
}

func TestParseStages(t *testing.T) {
	s, err := ParseStages("20s:100, 20s:200,20s:0")
	require.NoError(t, err)
	assert.Equal(t, DefaultStages(), s)
	assert.Equal(t, "20s:100,20s:200,20s:0", s.String())

	for _, bad := range []string{"", "20s", "abc:10", "10s:x", "0s:5"} {
		_, err := ParseStages(bad)
		assert.Error(t, err, bad)
	}
}

func TestScenario_URL(t *testing.T) {
	u, err := Products().URL("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/products", u)

	u, err = TopProducts().URL("http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/products/top?sortType=VIEW_COUNT", u)

	_, err = Products().URL("localhost:8080")
	assert.Error(t, err)
	_, err = Products().URL("http://")
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"products", "top-products"}, Names())

	sc, err := Lookup("top-products")
	require.NoError(t, err)
	assert.Equal(t, "fetch_top_products_view_count", sc.RequestName)
	assert.Equal(t, "popular_product_response_time", sc.TrendMetric)
	assert.Len(t, sc.Checks, 5)

	sc, err = Lookup("products")
	require.NoError(t, err)
	assert.Len(t, sc.Checks, 4)

	_, err = Lookup("orders")
	assert.Error(t, err)
}
