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

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/ledger"
)

var Balance = discord.SlashCommandCreate{
	Name:        "balance",
	Description: "💰 View your current balance",
}

func BalanceHandler(b *shadowmarket.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guild, ok := guildScope(e)
		if !ok {
			return e.CreateMessage(errorEmbed("The market only operates inside a server."))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		balance, err := b.Ledger.GetBalance(ctx, e.User().ID.String(), guild)
		if err != nil {
			slog.Error("Failed to fetch balance",
				slog.String("type", "cmd"),
				slog.Any("error", err))
			return e.CreateMessage(errorEmbed("Failed to fetch your balance. Please try again later."))
		}

		description := fmt.Sprintf("```ansi\n"+
			"\x1b[1;36mBalance:\x1b[0m %d credits\n"+
			"\x1b[0;37m%s\x1b[0m\n"+
			"```",
			balance,
			createBalanceBar(balance),
		)

		now := time.Now()
		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "💰 Balance",
				Description: description,
				Color:       SuccessColor,
				Footer: &discord.EmbedFooter{
					Text: fmt.Sprintf("Requested by %s", e.User().Username),
				},
				Timestamp: &now,
			}},
		})
	}
}

var Pay = discord.SlashCommandCreate{
	Name:        "pay",
	Description: "💸 Transfer credits to another member",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "user",
			Description: "Who receives the credits",
			Required:    true,
		},
		discord.ApplicationCommandOptionInt{
			Name:        "amount",
			Description: "How many credits to send",
			Required:    true,
		},
	},
}

func PayHandler(b *shadowmarket.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guild, ok := guildScope(e)
		if !ok {
			return e.CreateMessage(errorEmbed("The market only operates inside a server."))
		}

		data := e.SlashCommandInteractionData()
		target := data.User("user")
		amount := int64(data.Int("amount"))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := b.Ledger.Transfer(ctx, e.User().ID.String(), target.ID.String(), guild, amount)
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount):
			return e.CreateMessage(errorEmbed("The amount has to be positive."))
		case errors.Is(err, ledger.ErrSelfTransfer):
			return e.CreateMessage(errorEmbed("You cannot pay yourself."))
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return e.CreateMessage(errorEmbed("You do not have that many credits."))
		case err != nil:
			slog.Error("Transfer failed",
				slog.String("type", "cmd"),
				slog.Any("error", err))
			return e.CreateMessage(errorEmbed("Transfer failed. Please try again later."))
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "💸 Payment Sent",
				Description: fmt.Sprintf("Sent **%d** credits to <@%s>.", amount, target.ID),
				Color:       SuccessColor,
			}},
		})
	}
}

func createBalanceBar(balance int64) string {
	const barLength = 10

	var milestone int64 = 1000000
	if balance < 100000 {
		milestone = 100000
	} else if balance < 500000 {
		milestone = 500000
	}

	progress := float64(balance) / float64(milestone)
	if progress > 1.0 {
		progress = 1.0
	}
	filled := int(progress * float64(barLength))

	var bar strings.Builder
	bar.WriteString("[")
	for i := 0; i < barLength; i++ {
		if i < filled {
			bar.WriteString("■")
		} else {
			bar.WriteString("□")
		}
	}
	bar.WriteString(fmt.Sprintf("] %.1f%%", progress*100))

	return bar.String()
}
