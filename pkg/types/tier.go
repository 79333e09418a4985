package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Tier is an ordered membership level. The zero value is Standard, which is
// also what verification reports for unknown cards.
type Tier uint8

const (
	TierStandard Tier = iota
	TierPremium
	TierElite
	TierLifetime
)

var AllTiers = []Tier{TierStandard, TierPremium, TierElite, TierLifetime}

var tierNames = map[Tier]string{
	TierStandard: "standard",
	TierPremium:  "premium",
	TierElite:    "elite",
	TierLifetime: "lifetime",
}

func (t Tier) Valid() bool { return t <= TierLifetime }

// tierFromInt range-checks n before narrowing it to a Tier.
func tierFromInt(n int) (Tier, bool) {
	if n < 0 || n > int(TierLifetime) {
		return TierStandard, false
	}
	return Tier(n), true
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "tier(" + strconv.Itoa(int(t)) + ")"
}

// ParseTier accepts a tier name (case-insensitive) or its ordinal.
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range tierNames {
		if name == s {
			return t, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		if t, ok := tierFromInt(n); ok {
			return t, nil
		}
	}
	return TierStandard, fmt.Errorf("unknown tier %q", s)
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		parsed, ok := tierFromInt(n)
		if !ok {
			return fmt.Errorf("unknown tier %d", n)
		}
		*t = parsed
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("tier must be a string or number: %w", err)
	}
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TierDefinition is the single source for everything attached to a tier:
// checkout price and display metadata. Benefits are descriptive only.
type TierDefinition struct {
	Tier        Tier     `json:"tier"`
	DisplayName string   `json:"display_name"`
	Price       int64    `json:"price"` // minor units
	Currency    string   `json:"currency"`
	Color       string   `json:"color"`
	Benefits    []string `json:"benefits"`
}

// TierPriceOverride is the config shape used to reprice a tier.
type TierPriceOverride struct {
	Tier     string `mapstructure:"tier"`
	Price    int64  `mapstructure:"price"`
	Currency string `mapstructure:"currency"`
}

func DefaultTierDefinitions() []TierDefinition {
	return []TierDefinition{
		{
			Tier: TierStandard, DisplayName: "Standard", Price: 99900, Currency: "usd", Color: "#3B82F6",
			Benefits: []string{"Marina access", "Clubhouse access", "Member events"},
		},
		{
			Tier: TierPremium, DisplayName: "Premium", Price: 249900, Currency: "usd", Color: "#8B5CF6",
			Benefits: []string{"All Standard benefits", "Priority berth booking", "2 guest passes per month"},
		},
		{
			Tier: TierElite, DisplayName: "Elite", Price: 499900, Currency: "usd", Color: "#F59E0B",
			Benefits: []string{"All Premium benefits", "Concierge service", "5 guest passes per month", "Regatta hospitality"},
		},
		{
			Tier: TierLifetime, DisplayName: "Lifetime", Price: 2499900, Currency: "usd", Color: "#10B981",
			Benefits: []string{"All Elite benefits", "Unlimited guest passes", "Founding member recognition"},
		},
	}
}

// TierTable is an immutable lookup over tier definitions.
type TierTable struct {
	defs map[Tier]TierDefinition
}

// NewTierTable builds the default table and applies overrides. Overrides
// naming an unknown tier are ignored.
func NewTierTable(overrides ...TierPriceOverride) *TierTable {
	defs := lo.SliceToMap(DefaultTierDefinitions(), func(d TierDefinition) (Tier, TierDefinition) { return d.Tier, d })
	for _, o := range overrides {
		t, err := ParseTier(o.Tier)
		if err != nil {
			continue
		}
		d := defs[t]
		if o.Price > 0 {
			d.Price = o.Price
		}
		if o.Currency != "" {
			d.Currency = strings.ToLower(o.Currency)
		}
		defs[t] = d
	}
	return &TierTable{defs: defs}
}

func (tt *TierTable) Get(t Tier) (TierDefinition, bool) {
	d, ok := tt.defs[t]
	return d, ok
}

func (tt *TierTable) List() []TierDefinition {
	return lo.Map(AllTiers, func(t Tier, _ int) TierDefinition { return tt.defs[t] })
}
