package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	cases := []struct {
		in   string
		want Tier
		ok   bool
	}{
		{"standard", TierStandard, true},
		{" Premium ", TierPremium, true},
		{"ELITE", TierElite, true},
		{"3", TierLifetime, true},
		{"0", TierStandard, true},
		{"4", 0, false},
		{"-1", 0, false},
		{"256", 0, false},
		{"257", 0, false},
		{"gold", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseTier(tc.in)
		if !tc.ok {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestTierUnmarshalJSON(t *testing.T) {
	var tier Tier
	require.NoError(t, json.Unmarshal([]byte(`"lifetime"`), &tier))
	require.Equal(t, TierLifetime, tier)
	require.NoError(t, json.Unmarshal([]byte(`2`), &tier))
	require.Equal(t, TierElite, tier)

	for _, raw := range []string{`256`, `257`, `-1`, `4`, `"257"`, `"gold"`, `true`} {
		tier = TierPremium
		require.Error(t, json.Unmarshal([]byte(raw), &tier), raw)
		require.Equal(t, TierPremium, tier, "left untouched on error: %s", raw)
	}

	b, err := json.Marshal(TierElite)
	require.NoError(t, err)
	require.JSONEq(t, `"elite"`, string(b))
}

func TestNewTierTable_Overrides(t *testing.T) {
	tt := NewTierTable(
		TierPriceOverride{Tier: "premium", Price: 300000, Currency: "EUR"},
		TierPriceOverride{Tier: "257", Price: 1},
		TierPriceOverride{Tier: "gold", Price: 1},
	)
	premium, ok := tt.Get(TierPremium)
	require.True(t, ok)
	require.Equal(t, int64(300000), premium.Price)
	require.Equal(t, "eur", premium.Currency)

	standard, _ := tt.Get(TierStandard)
	require.Equal(t, int64(99900), standard.Price, "out-of-range ordinals do not wrap onto a real tier")
	require.Len(t, tt.List(), len(AllTiers))
}
