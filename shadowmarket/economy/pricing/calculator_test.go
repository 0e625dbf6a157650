package pricing

import (
	"testing"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/stretchr/testify/assert"
)

func TestQuoteBasePrice(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	q := calc.Quote(Input{Score: 5.0})
	assert.Equal(t, int64(25000), q.BasePrice)
	assert.Equal(t, int64(25000), q.FinalPrice)
	assert.Equal(t, 1.0, q.TagMultiplier)
	assert.Equal(t, 1.0, q.RarityMultiplier)
}

func TestQuoteMonotonicInScore(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	in := Input{
		Tags:       []string{"twintails", "school_uniform"},
		Characters: []string{"some_character"},
		Saturation: map[string]int64{"twintails": 40},
	}

	var prev int64 = -1
	for _, score := range []float64{1, 2.5, 4, 6.5, 8, 9.5, 10} {
		in.Score = score
		q := calc.Quote(in)
		assert.Greater(t, q.FinalPrice, prev, "score %v", score)
		prev = q.FinalPrice
	}
}

func TestQuoteScoreClamped(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	assert.Equal(t, calc.Quote(Input{Score: 12}).FinalPrice, calc.Quote(Input{Score: 10}).FinalPrice)
	assert.Equal(t, int64(0), calc.Quote(Input{Score: -3}).BasePrice)
}

func TestTagMultiplierWorstTagDominates(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	// sat 8 -> 1/log10(10) = 1.0, sat 98 -> 1/log10(100) = 0.5
	q := calc.Quote(Input{
		Score:      5,
		Tags:       []string{"fresh_tag", "flooded_tag"},
		Saturation: map[string]int64{"fresh_tag": 8, "flooded_tag": 98},
	})
	assert.InDelta(t, 0.5, q.TagMultiplier, 1e-9)
	assert.Equal(t, int64(12500), q.FinalPrice)
}

func TestTagMultiplierFloor(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	q := calc.Quote(Input{
		Score:      5,
		Tags:       []string{"mega_flooded"},
		Saturation: map[string]int64{"mega_flooded": 100000000000},
	})
	assert.Equal(t, 0.1, q.TagMultiplier)
}

func TestTagMultiplierUnknownTagsNeutral(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	q := calc.Quote(Input{
		Score:      5,
		Tags:       []string{"never_seen"},
		Saturation: map[string]int64{},
	})
	assert.Equal(t, 1.0, q.TagMultiplier)
}

func TestRarityTierSteps(t *testing.T) {
	assert.Equal(t, 3.0, RarityTier(0))
	assert.Equal(t, 3.0, RarityTier(999))
	assert.Equal(t, 2.0, RarityTier(1000))
	assert.Equal(t, 2.0, RarityTier(4999))
	assert.Equal(t, 1.5, RarityTier(5000))
	assert.Equal(t, 1.5, RarityTier(19999))
	assert.Equal(t, 1.2, RarityTier(20000))
	assert.Equal(t, 1.2, RarityTier(49999))
	assert.Equal(t, 1.0, RarityTier(50000))
	assert.Equal(t, 1.0, RarityTier(9999999))
}

func TestEligibleRarityTags(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	tags := []string{"1girl", "hatsune_miku", "twintails", "solo", "wings", "ahoge", "glasses", "fang"}
	eligible := calc.EligibleRarityTags(tags, []string{"hatsune_miku"})

	assert.Equal(t, []string{"twintails", "wings", "ahoge", "glasses", "fang"}, eligible)
}

func TestRarityMultiplierUsesBestTier(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	q := calc.Quote(Input{
		Score: 5,
		Tags:  []string{"common_tag", "rare_tag"},
		RarityCounts: map[string]int64{
			"common_tag": 800000,
			"rare_tag":   500,
		},
	})
	assert.Equal(t, 3.0, q.RarityMultiplier)
	assert.Equal(t, int64(75000), q.FinalPrice)
}

func TestTrendAndCharacterBonuses(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	trend := &models.DailyTrend{
		DateKey: "2026-08-28",
		Pose:    "sitting",
		Costume: "maid",
		Body:    "cat_ears",
	}

	q := calc.Quote(Input{
		Score:      5,
		Tags:       []string{"sitting", "cat_ears", "unrelated"},
		Characters: []string{"char_a", "char_b"},
		Trend:      trend,
	})
	assert.Equal(t, 2, q.TrendMatches)
	assert.Equal(t, int64(10000), q.TrendBonus)
	assert.Equal(t, int64(4000), q.CharacterBonus)
	assert.Equal(t, int64(25000+10000+4000), q.FinalPrice)
}

func TestGrade(t *testing.T) {
	assert.Equal(t, "S", Grade(9.0))
	assert.Equal(t, "S", Grade(9.8))
	assert.Equal(t, "A", Grade(7.0))
	assert.Equal(t, "A", Grade(8.99))
	assert.Equal(t, "B", Grade(6.99))
	assert.Equal(t, "B", Grade(0))
}

func TestDecaySaturation(t *testing.T) {
	assert.Equal(t, int64(90), DecaySaturation(100))
	assert.Equal(t, int64(4), DecaySaturation(5))
	assert.Equal(t, int64(0), DecaySaturation(0))
	assert.Equal(t, int64(0), DecaySaturation(1))
}

func TestListingPrice(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	assert.Equal(t, int64(1500), calc.ListingPrice(1000))
	assert.Equal(t, int64(151), calc.ListingPrice(101))
}
