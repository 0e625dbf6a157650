package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/repositories"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/ledger"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/market"
)

var MarketCmd = discord.SlashCommandCreate{
	Name:        "market",
	Description: "🏪 Browse what is currently for sale",
}

func MarketHandler(b *shadowmarket.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		listings, err := b.Market.Listings(ctx, 10)
		if err != nil {
			slog.Error("Failed to fetch listings",
				slog.String("type", "cmd"),
				slog.Any("error", err))
			return e.CreateMessage(errorEmbed("Failed to fetch the market. Please try again later."))
		}

		if len(listings) == 0 {
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{{
					Title:       "🏪 Shadow Market",
					Description: "Nothing on the shelves right now. `/submit` something.",
					Color:       InfoColor,
				}},
			})
		}

		var sb strings.Builder
		for _, item := range listings {
			sb.WriteString(fmt.Sprintf("**No.%d** | Grade %s (%.2f) | %d 💰 | %s\n",
				item.ID, item.Grade, item.Score, item.Price, tagLine(item.Tags)))
		}

		now := time.Now()
		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "🏪 Shadow Market",
				Description: sb.String(),
				Color:       InfoColor,
				Footer: &discord.EmbedFooter{
					Text: "Buy with /buy <id>",
				},
				Timestamp: &now,
			}},
		})
	}
}

var Buy = discord.SlashCommandCreate{
	Name:        "buy",
	Description: "🛒 Buy a listed item",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionInt{
			Name:        "id",
			Description: "The listing number",
			Required:    true,
		},
	},
}

func BuyHandler(b *shadowmarket.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if _, ok := guildScope(e); !ok {
			return e.CreateMessage(errorEmbed("The market only operates inside a server."))
		}

		itemID := int64(e.SlashCommandInteractionData().Int("id"))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		item, err := b.Market.Buy(ctx, itemID, e.User().ID.String())
		if err != nil {
			return e.CreateMessage(buyErrorEmbed(err))
		}

		return e.CreateMessage(purchaseEmbed(item))
	}
}

// BuyButtonHandler serves the buy button attached to gallery listings.
// The listing ID rides in the component's custom ID.
func BuyButtonHandler(b *shadowmarket.Bot) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		if e.GuildID() == nil {
			return e.CreateMessage(errorEmbed("The market only operates inside a server."))
		}

		itemID, err := strconv.ParseInt(e.Vars["id"], 10, 64)
		if err != nil {
			return e.CreateMessage(errorEmbed("That listing reference is broken."))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		item, err := b.Market.Buy(ctx, itemID, e.User().ID.String())
		if err != nil {
			return e.CreateMessage(buyErrorEmbed(err))
		}

		return e.CreateMessage(purchaseEmbed(item))
	}
}

var Resell = discord.SlashCommandCreate{
	Name:        "resell",
	Description: "🏷️ Put an item you own back on sale",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionInt{
			Name:        "id",
			Description: "The item number",
			Required:    true,
		},
		discord.ApplicationCommandOptionInt{
			Name:        "price",
			Description: "Your asking price",
			Required:    true,
		},
	},
}

func ResellHandler(b *shadowmarket.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if _, ok := guildScope(e); !ok {
			return e.CreateMessage(errorEmbed("The market only operates inside a server."))
		}

		data := e.SlashCommandInteractionData()
		itemID := int64(data.Int("id"))
		price := int64(data.Int("price"))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		item, err := b.Market.Resell(ctx, itemID, e.User().ID.String(), price)
		switch {
		case errors.Is(err, repositories.ErrItemNotFound):
			return e.CreateMessage(errorEmbed("No such item."))
		case errors.Is(err, market.ErrNotOwner):
			return e.CreateMessage(errorEmbed("You do not own that item."))
		case errors.Is(err, market.ErrMinPrice):
			return e.CreateMessage(errorEmbed(fmt.Sprintf("The minimum asking price is %d credits.", market.MinResalePrice)))
		case err != nil:
			slog.Error("Resell failed",
				slog.String("type", "cmd"),
				slog.Any("error", err))
			return e.CreateMessage(errorEmbed("Resell failed. Please try again later."))
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title: "🏷️ Back on Sale",
				Description: fmt.Sprintf("Item No.%d is listed at **%d** 💰.\nA %d%% broker fee applies when it sells.",
					item.ID, item.Price, int(market.ResaleTaxRate*100)),
				Color: SuccessColor,
			}},
		})
	}
}

func buyErrorEmbed(err error) discord.MessageCreate {
	switch {
	case errors.Is(err, repositories.ErrItemNotFound):
		return errorEmbed("No such listing.")
	case errors.Is(err, market.ErrNotForSale):
		return errorEmbed("That item is not for sale.")
	case errors.Is(err, market.ErrOwnListing):
		return errorEmbed("You cannot buy your own listing.")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return errorEmbed("You cannot afford that.")
	default:
		slog.Error("Purchase failed",
			slog.String("type", "cmd"),
			slog.Any("error", err))
		return errorEmbed("Purchase failed. Please try again later.")
	}
}

func purchaseEmbed(item *models.MarketItem) discord.MessageCreate {
	return discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title:       "🛒 Purchase Complete",
			Description: fmt.Sprintf("Item No.%d is yours for **%d** 💰.", item.ID, item.Price),
			Color:       SuccessColor,
			Image:       &discord.EmbedResource{URL: item.ContentURL},
		}},
	}
}

func tagLine(tags []string) string {
	const maxShown = 3
	if len(tags) == 0 {
		return "untagged"
	}
	shown := tags
	if len(shown) > maxShown {
		shown = shown[:maxShown]
	}
	return strings.Join(shown, ", ")
}
