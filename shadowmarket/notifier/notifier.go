// Package notifier turns post-commit economy events into Discord
// messages. Every method is fire and forget; a dead channel never
// propagates back into a transaction.
package notifier

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/pricing"
)

const embedColor = 0x2b2d31

type Notifier struct {
	mu             sync.RWMutex
	client         bot.Client
	galleryChannel snowflake.ID
	trendChannel   snowflake.ID
}

func New(galleryChannel, trendChannel snowflake.ID) *Notifier {
	return &Notifier{
		galleryChannel: galleryChannel,
		trendChannel:   trendChannel,
	}
}

// SetClient attaches the gateway client once it exists. Events before
// that are logged and dropped.
func (n *Notifier) SetClient(client bot.Client) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.client = client
}

func (n *Notifier) send(channelID snowflake.ID, message discord.MessageCreate) {
	n.mu.RLock()
	client := n.client
	n.mu.RUnlock()

	if client == nil || channelID == 0 {
		return
	}

	if _, err := client.Rest().CreateMessage(channelID, message); err != nil {
		slog.Error("Failed to send to Discord",
			slog.String("type", "sys"),
			slog.String("channel_id", channelID.String()),
			slog.String("error", err.Error()))
	}
}

// AnnounceListing posts a freshly brokered item to the gallery with a
// buy button.
func (n *Notifier) AnnounceListing(item *models.MarketItem, quote pricing.Quote) {
	embed := discord.NewEmbedBuilder().
		SetTitle(fmt.Sprintf("🖼️ New Listing No.%d", item.ID)).
		SetColor(embedColor).
		SetImage(item.ContentURL).
		AddField("Grade", fmt.Sprintf("**%s** (%.2f)", item.Grade, item.Score), true).
		AddField("Price", fmt.Sprintf("%d 💰", item.Price), true)

	if quote.TrendMatches > 0 {
		embed.AddField("Trend Bonus", fmt.Sprintf("+%d 💰", quote.TrendBonus), true)
	}
	if len(item.Tags) > 0 {
		embed.SetFooter(tagSummary(item.Tags), "")
	}

	n.send(n.galleryChannel, discord.NewMessageCreateBuilder().
		SetEmbeds(embed.Build()).
		AddActionRow(discord.NewPrimaryButton("Buy", fmt.Sprintf("/buy/%d", item.ID))).
		Build())
}

// AnnounceSale reports a completed direct purchase.
func (n *Notifier) AnnounceSale(item *models.MarketItem, buyerID string) {
	n.send(n.galleryChannel, discord.NewMessageCreateBuilder().
		SetContent(fmt.Sprintf("💸 <@%s> bought item No.%d for %d 💰", buyerID, item.ID, item.Price)).
		Build())
}

// AnnounceBid reports a new top bid, flagging anti-snipe extensions.
func (n *Notifier) AnnounceBid(item *models.MarketItem, bidderID string, amount int64, extended bool) {
	msg := fmt.Sprintf("🔨 <@%s> bid %d 💰 on item No.%d", bidderID, amount, item.ID)
	if extended {
		msg += " (auction extended)"
	}
	n.send(n.galleryChannel, discord.NewMessageCreateBuilder().SetContent(msg).Build())
}

// AnnounceSettlement reports an auction won.
func (n *Notifier) AnnounceSettlement(item *models.MarketItem, winnerID string, amount int64) {
	embed := discord.NewEmbedBuilder().
		SetTitle("🏛️ Auction Completed").
		SetColor(embedColor).
		SetDescription(fmt.Sprintf("Item No.%d goes to <@%s> for %d 💰", item.ID, winnerID, amount))

	n.send(n.galleryChannel, discord.NewMessageCreateBuilder().SetEmbeds(embed.Build()).Build())
}

// AnnounceExpired reports an auction that drew no bids.
func (n *Notifier) AnnounceExpired(item *models.MarketItem) {
	n.send(n.galleryChannel, discord.NewMessageCreateBuilder().
		SetContent(fmt.Sprintf("🏛️ Auction for item No.%d ended with no bids", item.ID)).
		Build())
}

// AnnounceTrend posts the day's trending attributes.
func (n *Notifier) AnnounceTrend(trend *models.DailyTrend) {
	embed := discord.NewEmbedBuilder().
		SetTitle(fmt.Sprintf("📅 Today's Trends (%s)", trend.DateKey)).
		SetColor(0xf1c40f).
		SetDescription("Submissions carrying these attributes earn a bonus.").
		AddField("🤸 Pose", fmt.Sprintf("`%s`", trend.Pose), true).
		AddField("👗 Costume", fmt.Sprintf("`%s`", trend.Costume), true).
		AddField("👀 Feature", fmt.Sprintf("`%s`", trend.Body), true).
		SetFooter("Updated daily at 06:00", "")

	n.send(n.trendChannel, discord.NewMessageCreateBuilder().SetEmbeds(embed.Build()).Build())
}

func tagSummary(tags []string) string {
	const maxTags = 5
	summary := ""
	for i, tag := range tags {
		if i >= maxTags {
			summary += " …"
			break
		}
		if i > 0 {
			summary += " "
		}
		summary += "#" + tag
	}
	return summary
}
