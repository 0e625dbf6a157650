package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TagStock is one tradable tag symbol. CurrentPrice never drops below 1.0.
type TagStock struct {
	bun.BaseModel `bun:"table:tag_stocks,alias:ts"`

	TagName      string  `bun:"tag_name,pk"`
	CurrentPrice float64 `bun:"current_price,notnull,default:100"`
	TotalVolume  int64   `bun:"total_volume,notnull,default:0"`

	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Holding is one participant's position in one tag. The row is deleted
// when Amount reaches zero so AverageCost resets on re-entry.
type Holding struct {
	bun.BaseModel `bun:"table:holdings,alias:h"`

	UserID      string  `bun:"user_id,pk"`
	TagName     string  `bun:"tag_name,pk"`
	Amount      int64   `bun:"amount,notnull,default:0"`
	AverageCost float64 `bun:"average_cost,notnull,default:0"`

	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
