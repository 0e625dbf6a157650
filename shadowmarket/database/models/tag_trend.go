package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TagTrend tracks per-tag submission saturation. Saturation rises by one
// for every tag on an accepted submission and decays daily.
//
// CurrentPrice is a legacy column kept for older deployments; the equity
// price lives in tag_stocks.
type TagTrend struct {
	bun.BaseModel `bun:"table:tag_trends,alias:tt"`

	TagName      string `bun:"tag_name,pk"`
	Saturation   int64  `bun:"saturation,notnull,default:0"`
	CurrentPrice int64  `bun:"current_price,notnull,default:0"`

	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// DailyTrend holds the attributes the market favors for one calendar day,
// one value per category, keyed by YYYY-MM-DD.
type DailyTrend struct {
	bun.BaseModel `bun:"table:daily_trends,alias:dt"`

	DateKey string `bun:"date_key,pk"`
	Pose    string `bun:"pose"`
	Costume string `bun:"costume"`
	Body    string `bun:"body"`
}

// TagFrequency caches global post counts fetched from the external tag
// index. Rows older than the oracle TTL are refreshed on read.
type TagFrequency struct {
	bun.BaseModel `bun:"table:tag_frequencies,alias:tf"`

	TagName   string    `bun:"tag_name,pk"`
	PostCount int64     `bun:"post_count,notnull,default:0"`
	FetchedAt time.Time `bun:"fetched_at,notnull"`
}
