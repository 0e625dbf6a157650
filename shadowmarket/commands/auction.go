package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/repositories"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/auction"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/ledger"
)

var AuctionCmd = discord.SlashCommandCreate{
	Name:        "auction",
	Description: "🏛️ Timed auctions over owned items",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "create",
			Description: "Put an item you own up for auction",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        "id",
					Description: "The item number",
					Required:    true,
				},
				discord.ApplicationCommandOptionInt{
					Name:        "start",
					Description: "Starting price",
					Required:    true,
				},
				discord.ApplicationCommandOptionInt{
					Name:        "minutes",
					Description: "Auction length in minutes (1-1440)",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "bid",
			Description: "Bid on a running auction",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        "id",
					Description: "The item number",
					Required:    true,
				},
				discord.ApplicationCommandOptionInt{
					Name:        "amount",
					Description: "Your bid in credits",
					Required:    true,
				},
			},
		},
	},
}

func AuctionHandler(b *shadowmarket.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if _, ok := guildScope(e); !ok {
			return e.CreateMessage(errorEmbed("The market only operates inside a server."))
		}

		data := e.SlashCommandInteractionData()
		switch *data.SubCommandName {
		case "create":
			return handleAuctionCreate(b, e)
		case "bid":
			return handleAuctionBid(b, e)
		default:
			return e.CreateMessage(errorEmbed("Unknown auction action."))
		}
	}
}

func handleAuctionCreate(b *shadowmarket.Bot, e *handler.CommandEvent) error {
	data := e.SlashCommandInteractionData()
	itemID := int64(data.Int("id"))
	start := int64(data.Int("start"))
	minutes := data.Int("minutes")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	item, err := b.AuctionManager.Start(ctx, itemID, e.User().ID.String(), start, time.Duration(minutes)*time.Minute)
	switch {
	case errors.Is(err, repositories.ErrItemNotFound):
		return e.CreateMessage(errorEmbed("No such item."))
	case errors.Is(err, auction.ErrNotOwner):
		return e.CreateMessage(errorEmbed("You do not own that item, or it is already listed."))
	case errors.Is(err, auction.ErrInvalidStart):
		return e.CreateMessage(errorEmbed(fmt.Sprintf("The starting price has to be at least %d credits.", auction.MinStartPrice)))
	case errors.Is(err, auction.ErrInvalidDuration):
		return e.CreateMessage(errorEmbed("Auctions run between 1 minute and 24 hours."))
	case err != nil:
		slog.Error("Failed to start auction",
			slog.String("type", "cmd"),
			slog.Any("error", err))
		return e.CreateMessage(errorEmbed("Failed to start the auction. Please try again later."))
	}

	endsAt := item.AuctionEndTime
	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title: "🏛️ Auction Started",
			Description: fmt.Sprintf(
				"Item No.%d is up from **%d** 💰.\nEnds <t:%d:R>. Next bid must be at least **%d** 💰.",
				item.ID, item.CurrentBid, endsAt.Unix(), auction.MinimumBid(item.CurrentBid)),
			Color: SuccessColor,
		}},
	})
}

func handleAuctionBid(b *shadowmarket.Bot, e *handler.CommandEvent) error {
	data := e.SlashCommandInteractionData()
	itemID := int64(data.Int("id"))
	amount := int64(data.Int("amount"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	item, err := b.AuctionManager.PlaceBid(ctx, itemID, e.User().ID.String(), amount)
	switch {
	case errors.Is(err, repositories.ErrItemNotFound):
		return e.CreateMessage(errorEmbed("No such item."))
	case errors.Is(err, auction.ErrNotRunning):
		return e.CreateMessage(errorEmbed("That auction is not running."))
	case errors.Is(err, auction.ErrSelfBid):
		return e.CreateMessage(errorEmbed("You cannot bid on your own auction."))
	case errors.Is(err, auction.ErrAlreadyTopBidder):
		return e.CreateMessage(errorEmbed("You are already the top bidder."))
	case errors.Is(err, auction.ErrBidTooLow):
		return e.CreateMessage(errorEmbed("Your bid is below the minimum for this auction."))
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return e.CreateMessage(errorEmbed("You cannot afford that bid."))
	case err != nil:
		slog.Error("Failed to place bid",
			slog.String("type", "cmd"),
			slog.Any("error", err))
		return e.CreateMessage(errorEmbed("Failed to place the bid. Please try again later."))
	}

	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title: "🔨 Bid Placed",
			Description: fmt.Sprintf(
				"You lead item No.%d at **%d** 💰. Ends <t:%d:R>.",
				item.ID, item.CurrentBid, item.AuctionEndTime.Unix()),
			Color: SuccessColor,
		}},
	})
}
