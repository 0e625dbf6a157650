package pricing

import (
	"math"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
)

// Tags too common to say anything about rarity. They still count for
// saturation and trend matching.
var genericTags = map[string]struct{}{
	"1girl":             {},
	"solo":              {},
	"long_hair":         {},
	"breasts":           {},
	"looking_at_viewer": {},
	"smile":             {},
	"blush":             {},
	"short_hair":        {},
	"open_mouth":        {},
}

type Config struct {
	BaseRate       int64   // credits per score^2 unit
	TrendBonus     int64   // per matched daily trend attribute
	CharacterBonus int64   // per recognized character
	TagFloor       float64 // lower bound for the saturation multiplier
	MaxRarityTags  int     // confidence-ordered tags considered for rarity
	ListingMarkup  float64 // applied when the house lists a submission
}

func DefaultConfig() Config {
	return Config{
		BaseRate:       1000,
		TrendBonus:     5000,
		CharacterBonus: 2000,
		TagFloor:       0.1,
		MaxRarityTags:  5,
		ListingMarkup:  1.5,
	}
}

type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Input carries everything a valuation needs. Tags must be ordered by
// model confidence, highest first.
type Input struct {
	Score        float64
	Tags         []string
	Characters   []string
	Saturation   map[string]int64
	RarityCounts map[string]int64
	Trend        *models.DailyTrend
}

type Quote struct {
	Score            float64
	BasePrice        int64
	TagMultiplier    float64
	RarityMultiplier float64
	TrendMatches     int
	TrendBonus       int64
	CharacterBonus   int64
	FinalPrice       int64
	Grade            string
}

func (c *Calculator) Quote(in Input) Quote {
	score := clampScore(in.Score)

	base := int64(math.Floor(float64(c.cfg.BaseRate) * score * score))
	tagMult := c.tagMultiplier(in.Tags, in.Saturation)
	rarityMult := c.rarityMultiplier(in.Tags, in.Characters, in.RarityCounts)
	matches := c.trendMatches(in.Tags, in.Trend)

	trendBonus := int64(matches) * c.cfg.TrendBonus
	charBonus := int64(len(in.Characters)) * c.cfg.CharacterBonus

	final := int64(math.Floor(float64(base)*tagMult*rarityMult)) + trendBonus + charBonus

	return Quote{
		Score:            score,
		BasePrice:        base,
		TagMultiplier:    tagMult,
		RarityMultiplier: rarityMult,
		TrendMatches:     matches,
		TrendBonus:       trendBonus,
		CharacterBonus:   charBonus,
		FinalPrice:       final,
		Grade:            Grade(score),
	}
}

// ListingPrice is what the house asks for a freshly brokered item.
func (c *Calculator) ListingPrice(value int64) int64 {
	return int64(math.Floor(float64(value) * c.cfg.ListingMarkup))
}

// tagMultiplier is the saturation penalty: the most saturated tag
// dominates, so a single flooded attribute drags the whole valuation.
func (c *Calculator) tagMultiplier(tags []string, saturation map[string]int64) float64 {
	mult := 1.0
	found := false
	for _, tag := range tags {
		sat, ok := saturation[tag]
		if !ok {
			continue
		}
		m := 1.0 / math.Log10(float64(sat)+2)
		if !found || m < mult {
			mult = m
			found = true
		}
	}
	if mult < c.cfg.TagFloor {
		mult = c.cfg.TagFloor
	}
	return mult
}

// EligibleRarityTags picks the tags worth a rarity lookup: the highest
// confidence tags that are neither generic nor character names.
func (c *Calculator) EligibleRarityTags(tags, characters []string) []string {
	chars := make(map[string]struct{}, len(characters))
	for _, ch := range characters {
		chars[ch] = struct{}{}
	}

	eligible := make([]string, 0, c.cfg.MaxRarityTags)
	for _, tag := range tags {
		if _, ok := genericTags[tag]; ok {
			continue
		}
		if _, ok := chars[tag]; ok {
			continue
		}
		eligible = append(eligible, tag)
		if len(eligible) == c.cfg.MaxRarityTags {
			break
		}
	}
	return eligible
}

func (c *Calculator) rarityMultiplier(tags, characters []string, counts map[string]int64) float64 {
	mult := 1.0
	for _, tag := range c.EligibleRarityTags(tags, characters) {
		count, ok := counts[tag]
		if !ok {
			continue
		}
		if tier := RarityTier(count); tier > mult {
			mult = tier
		}
	}
	return mult
}

// RarityTier maps a global post count onto a scarcity multiplier.
func RarityTier(count int64) float64 {
	switch {
	case count < 1000:
		return 3.0
	case count < 5000:
		return 2.0
	case count < 20000:
		return 1.5
	case count < 50000:
		return 1.2
	default:
		return 1.0
	}
}

func (c *Calculator) trendMatches(tags []string, trend *models.DailyTrend) int {
	if trend == nil {
		return 0
	}

	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}

	matches := 0
	for _, attr := range []string{trend.Pose, trend.Costume, trend.Body} {
		if attr == "" {
			continue
		}
		if _, ok := set[attr]; ok {
			matches++
		}
	}
	return matches
}

// Grade buckets the aesthetic score.
func Grade(score float64) string {
	switch {
	case score >= 9.0:
		return models.GradeS
	case score >= 7.0:
		return models.GradeA
	default:
		return models.GradeB
	}
}

// DecaySaturation is the daily saturation step, truncating toward zero.
func DecaySaturation(sat int64) int64 {
	return int64(float64(sat) * 0.9)
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}
