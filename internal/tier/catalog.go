package tier

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultTiers returns the built-in tier table. A tiers.yml file, when
// present, replaces it wholesale.
func DefaultTiers() []Tier {
	return []Tier{
		{ID: "tier_2_20", Name: "2h/$20", AmountCents: 2_000, Hours: 2},
		{ID: "tier_6_50", Name: "6h/$50", AmountCents: 5_000, Hours: 6},
		{ID: "tier_12_100", Name: "12h/$100", AmountCents: 10_000, Hours: 12},
		{ID: "tier_25_200", Name: "25h/$200", AmountCents: 20_000, Hours: 25},
		{ID: "tier_50_400", Name: "50h/$400", AmountCents: 40_000, Hours: 50},
		{ID: "tier_125_800", Name: "125h/$800", AmountCents: 80_000, Hours: 125},
		{ID: "tier_200_1000", Name: "200h/$1000", AmountCents: 100_000, Hours: 200},
	}
}

// Catalog is the static tier table. Loaded once at startup, never mutated.
type Catalog struct {
	byID     map[string]Tier
	byLegacy map[string]string
	ordered  []Tier
}

// NewCatalog builds a catalog from an explicit tier list.
func NewCatalog(tiers []Tier) (*Catalog, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tier catalog is empty")
	}

	c := &Catalog{
		byID:     make(map[string]Tier, len(tiers)),
		byLegacy: map[string]string{},
		ordered:  make([]Tier, 0, len(tiers)),
	}
	for _, t := range tiers {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return nil, fmt.Errorf("tier with empty id")
		}
		if _, exists := c.byID[id]; exists {
			return nil, fmt.Errorf("duplicate tier id %q", id)
		}
		if t.AmountCents <= 0 {
			return nil, fmt.Errorf("tier %q has non-positive amount", id)
		}
		if t.Hours <= 0 {
			return nil, fmt.Errorf("tier %q has non-positive hours", id)
		}
		t.ID = id
		c.byID[id] = t
		c.ordered = append(c.ordered, t)

		for _, legacy := range t.LegacyPriceIDs {
			legacy = strings.TrimSpace(legacy)
			if legacy == "" {
				continue
			}
			if owner, exists := c.byLegacy[legacy]; exists && owner != id {
				return nil, fmt.Errorf("legacy price id %q mapped to both %q and %q", legacy, owner, id)
			}
			c.byLegacy[legacy] = id
		}
	}
	return c, nil
}

// Load reads tiers.yml through viper, falling back to the built-in table.
func Load() (*Catalog, error) {
	v := viper.New()
	v.SetConfigName("tiers")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/paygate/config")
	v.AddConfigPath("/etc/paygate")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		return NewCatalog(DefaultTiers())
	}

	var tiers []Tier
	if err := v.UnmarshalKey("tiers", &tiers); err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		return NewCatalog(DefaultTiers())
	}
	return NewCatalog(tiers)
}

// Resolve returns the tier for id, or ErrUnknownTier.
func (c *Catalog) Resolve(id string) (Tier, error) {
	t, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Tier{}, ErrUnknownTier
	}
	return t, nil
}

// ResolveLegacyPriceID maps a prior billing provider's price id to a tier id.
func (c *Catalog) ResolveLegacyPriceID(priceID string) (string, bool) {
	id, ok := c.byLegacy[strings.TrimSpace(priceID)]
	return id, ok
}

// Tiers returns the catalog in load order.
func (c *Catalog) Tiers() []Tier {
	out := make([]Tier, len(c.ordered))
	copy(out, c.ordered)
	return out
}
