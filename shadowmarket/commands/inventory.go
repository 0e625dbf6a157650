package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
)

var Inventory = discord.SlashCommandCreate{
	Name:        "inventory",
	Description: "🗃️ View the items you own",
}

func InventoryHandler(b *shadowmarket.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		items, err := b.Market.Inventory(ctx, e.User().ID.String())
		if err != nil {
			slog.Error("Failed to fetch inventory",
				slog.String("type", "cmd"),
				slog.Any("error", err))
			return e.CreateMessage(errorEmbed("Failed to fetch your inventory. Please try again later."))
		}

		if len(items) == 0 {
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{{
					Title:       "🗃️ Inventory",
					Description: "You own nothing yet. Browse `/market` or bid in an auction.",
					Color:       InfoColor,
				}},
			})
		}

		var sb strings.Builder
		for _, item := range items {
			sb.WriteString(fmt.Sprintf("**No.%d** | Grade %s (%.2f) | %d 💰 | %s | %s\n",
				item.ID, item.Grade, item.Score, item.Price, statusLabel(item), tagLine(item.Tags)))
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       fmt.Sprintf("🗃️ Inventory (%d items)", len(items)),
				Description: sb.String(),
				Color:       InfoColor,
				Footer: &discord.EmbedFooter{
					Text: "Resell with /resell, or start an auction with /auction create",
				},
			}},
		})
	}
}

func statusLabel(item *models.MarketItem) string {
	switch item.Status {
	case models.ItemStatusOnAuction:
		return "on auction"
	case models.ItemStatusOnSale:
		return "on sale"
	default:
		return "owned"
	}
}
