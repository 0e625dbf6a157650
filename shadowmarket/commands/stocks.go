package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/sahilm/fuzzy"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/ledger"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/stocks"
)

var Stock = discord.SlashCommandCreate{
	Name:        "stock",
	Description: "📈 Trade tag equity",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "view",
			Description: "Quote a symbol, or list the most traded ones",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "symbol",
					Description: "The tag to quote",
					Required:    false,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "buy",
			Description: "Buy shares of a tag",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "symbol",
					Description: "The tag to buy",
					Required:    true,
				},
				discord.ApplicationCommandOptionInt{
					Name:        "shares",
					Description: "How many shares",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "sell",
			Description: "Sell shares of a tag",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "symbol",
					Description: "The tag to sell",
					Required:    true,
				},
				discord.ApplicationCommandOptionInt{
					Name:        "shares",
					Description: "How many shares",
					Required:    true,
				},
			},
		},
	},
}

func StockHandler(b *shadowmarket.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guild, ok := guildScope(e)
		if !ok {
			return e.CreateMessage(errorEmbed("The market only operates inside a server."))
		}

		data := e.SlashCommandInteractionData()
		switch *data.SubCommandName {
		case "view":
			return handleStockView(b, e)
		case "buy":
			return handleStockTrade(b, e, guild, true)
		case "sell":
			return handleStockTrade(b, e, guild, false)
		default:
			return e.CreateMessage(errorEmbed("Unknown stock action."))
		}
	}
}

func handleStockView(b *shadowmarket.Bot, e *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	symbol, hasSymbol := e.SlashCommandInteractionData().OptString("symbol")
	if !hasSymbol || symbol == "" {
		all, err := b.StockMarket.All(ctx)
		if err != nil {
			slog.Error("Failed to fetch stock board",
				slog.String("type", "cmd"),
				slog.Any("error", err))
			return e.CreateMessage(errorEmbed("Failed to fetch the board. Please try again later."))
		}

		if len(all) == 0 {
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{{
					Title:       "📈 Tag Exchange",
					Description: "No symbols are trading yet. Submissions create them.",
					Color:       InfoColor,
				}},
			})
		}

		var sb strings.Builder
		limit := len(all)
		if limit > 15 {
			limit = 15
		}
		for _, s := range all[:limit] {
			sb.WriteString(fmt.Sprintf("`%-24s` %8.2f 💰 | vol %d\n", s.TagName, s.CurrentPrice, s.TotalVolume))
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "📈 Tag Exchange",
				Description: sb.String(),
				Color:       InfoColor,
				Footer: &discord.EmbedFooter{
					Text: "Sorted by volume | /stock buy <symbol> <shares>",
				},
			}},
		})
	}

	resolved, suggestion := resolveSymbol(ctx, b, symbol)
	price, err := b.StockMarket.Price(ctx, resolved)
	if err != nil {
		slog.Error("Failed to quote symbol",
			slog.String("type", "cmd"),
			slog.Any("error", err))
		return e.CreateMessage(errorEmbed("Failed to quote that symbol. Please try again later."))
	}

	description := fmt.Sprintf("**%s** trades at **%.2f** 💰 per share.", resolved, price)
	if suggestion != "" {
		description += fmt.Sprintf("\n(No exact match for `%s`; showing `%s`.)", symbol, suggestion)
	}

	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title:       "📈 Quote",
			Description: description,
			Color:       InfoColor,
		}},
	})
}

func handleStockTrade(b *shadowmarket.Bot, e *handler.CommandEvent, guild string, buying bool) error {
	data := e.SlashCommandInteractionData()
	symbol := strings.TrimSpace(data.String("symbol"))
	shares := int64(data.Int("shares"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resolved, _ := resolveSymbol(ctx, b, symbol)

	var trade *stocks.Trade
	var err error
	if buying {
		trade, err = b.StockMarket.Buy(ctx, e.User().ID.String(), guild, resolved, shares)
	} else {
		trade, err = b.StockMarket.Sell(ctx, e.User().ID.String(), guild, resolved, shares)
	}

	switch {
	case errors.Is(err, stocks.ErrInvalidShares):
		return e.CreateMessage(errorEmbed("The share amount has to be positive."))
	case errors.Is(err, stocks.ErrInsufficientShares):
		return e.CreateMessage(errorEmbed(fmt.Sprintf("You do not hold that many shares of `%s`.", resolved)))
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return e.CreateMessage(errorEmbed("You cannot afford that order."))
	case err != nil:
		slog.Error("Stock order failed",
			slog.String("type", "cmd"),
			slog.Any("error", err))
		return e.CreateMessage(errorEmbed("Order failed. Please try again later."))
	}

	if buying {
		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title: "📈 Order Filled",
				Description: fmt.Sprintf(
					"Bought **%d** × `%s` at %.2f 💰 (total %d 💰).\nYou now hold %d shares. New price: %.2f 💰.",
					trade.Shares, trade.Tag, trade.PricePerShare, trade.Total, trade.NewAmount, trade.NewPrice),
				Color: SuccessColor,
			}},
		})
	}

	profitLine := fmt.Sprintf("Profit: **%+d** 💰", trade.Profit)
	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title: "📉 Order Filled",
			Description: fmt.Sprintf(
				"Sold **%d** × `%s` at %.2f 💰 (total %d 💰). %s\nYou now hold %d shares. New price: %.2f 💰.",
				trade.Shares, trade.Tag, trade.PricePerShare, trade.Total, profitLine, trade.NewAmount, trade.NewPrice),
			Color: SuccessColor,
		}},
	})
}

// resolveSymbol maps user input to a listed symbol. Exact names pass
// through untouched; otherwise the closest listed symbol wins and the
// caller is told about the substitution.
func resolveSymbol(ctx context.Context, b *shadowmarket.Bot, query string) (resolved, suggestion string) {
	query = strings.ToLower(strings.TrimSpace(query))

	all, err := b.StockMarket.All(ctx)
	if err != nil {
		return query, ""
	}

	names := make([]string, len(all))
	for i, s := range all {
		if s.TagName == query {
			return query, ""
		}
		names[i] = s.TagName
	}

	matches := fuzzy.Find(query, names)
	if len(matches) == 0 {
		return query, ""
	}
	return matches[0].Str, matches[0].Str
}

var Portfolio = discord.SlashCommandCreate{
	Name:        "portfolio",
	Description: "💼 View your tag equity holdings",
}

func PortfolioHandler(b *shadowmarket.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		holdings, err := b.StockMarket.Holdings(ctx, e.User().ID.String())
		if err != nil {
			slog.Error("Failed to fetch portfolio",
				slog.String("type", "cmd"),
				slog.Any("error", err))
			return e.CreateMessage(errorEmbed("Failed to fetch your portfolio. Please try again later."))
		}

		if len(holdings) == 0 {
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{{
					Title:       "💼 Portfolio",
					Description: "You hold no shares. Try `/stock buy`.",
					Color:       InfoColor,
				}},
			})
		}

		var sb strings.Builder
		for _, h := range holdings {
			price, err := b.StockMarket.Price(ctx, h.TagName)
			if err != nil {
				continue
			}
			value := int64(price * float64(h.Amount))
			cost := int64(h.AverageCost * float64(h.Amount))
			sb.WriteString(fmt.Sprintf("`%-24s` %d shares | value %d 💰 | P/L %+d 💰\n",
				h.TagName, h.Amount, value, value-cost))
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "💼 Portfolio",
				Description: sb.String(),
				Color:       InfoColor,
			}},
		})
	}
}
