package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVenueSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", VenueSymbol("BTC/USDT"))
	assert.Equal(t, "DOGEUSDT", VenueSymbol("doge/usdt"))
	assert.Equal(t, "ETHUSDT", VenueSymbol("ETHUSDT"))
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "btcusdt@depth20@100ms", StreamName("BTC/USDT", 20, "100ms"))
	assert.Equal(t, "ethusdt@depth5", StreamName("ETH/USDT", 5, ""))
}

func TestRoundDepth(t *testing.T) {
	tests := []struct {
		depth   int
		allowed []int
		want    int
	}{
		{depth: 1, allowed: streamDepths, want: 5},
		{depth: 10, allowed: streamDepths, want: 10},
		{depth: 15, allowed: streamDepths, want: 20},
		{depth: 50, allowed: streamDepths, want: 20},
		{depth: 30, allowed: restDepths, want: 50},
		{depth: 5000, allowed: restDepths, want: 1000},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, roundDepth(tt.depth, tt.allowed), "depth %d", tt.depth)
	}
}
