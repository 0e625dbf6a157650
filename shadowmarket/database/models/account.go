package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Account is one participant's wallet inside a guild. Balance never goes
// below zero; the ledger enforces that with guarded updates.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	UserID  string `bun:"user_id,pk"`
	GuildID string `bun:"guild_id,pk"`
	Balance int64  `bun:"balance,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
