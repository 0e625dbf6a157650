package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/services"
)

var Join = discord.SlashCommandCreate{
	Name:        "join",
	Description: "🎫 Open an account at the shadow market",
}

func JoinHandler(b *shadowmarket.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guild, ok := guildScope(e)
		if !ok {
			return e.CreateMessage(errorEmbed("The market only operates inside a server."))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		created, err := b.Broker.Join(ctx, e.User().ID.String(), guild)
		if err != nil {
			slog.Error("Failed to open account",
				slog.String("type", "cmd"),
				slog.Any("error", err))
			return e.CreateMessage(errorEmbed("Failed to open your account. Please try again later."))
		}

		if !created {
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{{
					Title:       "🎫 Already a Member",
					Description: "You already hold an account here. Check it with `/balance`.",
					Color:       InfoColor,
				}},
			})
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title: "🎫 Welcome to the Shadow Market",
				Description: fmt.Sprintf(
					"Your account is open with a signing bonus of **%d** credits.\n"+
						"Use `/submit` to broker content, `/market` to browse listings.",
					services.JoinBonus),
				Color: SuccessColor,
			}},
		})
	}
}
