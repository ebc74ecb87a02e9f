package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalParams(t *testing.T) {
	got := CanonicalParams(map[string]string{
		"State":     " Punjab ",
		"commodity": "Rice",
		"district":  "",
	})

	assert.Equal(t, "commodity=rice&state=punjab", got)
}

func TestParamsKey_StableAcrossOrderAndCase(t *testing.T) {
	a := ParamsKey("weather", map[string]string{"lat": "30.90", "lon": "75.85", "district": "Ludhiana"})
	b := ParamsKey("weather", map[string]string{"district": "ludhiana", "lon": "75.85", "lat": "30.90"})
	c := ParamsKey("market_price", map[string]string{"lat": "30.90", "lon": "75.85", "district": "Ludhiana"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "weather:")
}
