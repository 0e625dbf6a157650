package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ItemStatusOnSale    = "on_sale"
	ItemStatusOwned     = "owned"
	ItemStatusSold      = "sold"
	ItemStatusOnAuction = "on_auction"
)

const (
	GradeS = "S"
	GradeA = "A"
	GradeB = "B"
)

// MarketItem is a single piece of submitted content and its full market
// lifecycle: listed by the house, bought, resold, auctioned.
//
// ContentHash is the perceptual fingerprint as 16 hex digits; empty when
// fingerprinting failed at submission time.
type MarketItem struct {
	bun.BaseModel `bun:"table:market_items,alias:mi"`

	ID          int64   `bun:"id,pk,autoincrement"`
	SellerID    string  `bun:"seller_id,notnull"`
	GuildID     string  `bun:"guild_id,notnull"`
	ContentURL  string  `bun:"content_url,notnull"`
	ContentHash string  `bun:"content_hash"`
	Score       float64 `bun:"aesthetic_score,notnull,default:0"`
	Price       int64   `bun:"price,notnull"`
	Status      string  `bun:"status,notnull,default:'on_sale'"`
	Grade       string  `bun:"grade"`

	Tags       []string `bun:"tags,type:jsonb"`
	Characters []string `bun:"characters,type:jsonb"`

	// Presentation references (gallery message carrying the buy button)
	ChannelID string `bun:"channel_id"`
	MessageID string `bun:"message_id"`

	BuyerID string `bun:"buyer_id"`

	// Auction state, only meaningful while Status == on_auction
	AuctionEndTime time.Time `bun:"auction_end_time,nullzero"`
	CurrentBid     int64     `bun:"current_bid,notnull,default:0"`
	TopBidderID    string    `bun:"top_bidder_id"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
