package commands

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

const (
	SuccessColor = 0x2ECC71
	ErrorColor   = 0xE74C3C
	InfoColor    = 0x2b2d31
)

var Commands = []discord.ApplicationCommandCreate{
	Join,
	Balance,
	Pay,
	Submit,
	MarketCmd,
	Buy,
	Resell,
	Inventory,
	AuctionCmd,
	Stock,
	Portfolio,
	Trends,
}

func errorEmbed(description string) discord.MessageCreate {
	return discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title:       "Error",
			Description: description,
			Color:       ErrorColor,
		}},
	}
}

// guildScope resolves the wallet scope of an interaction. The economy
// is guild-scoped, so DMs are rejected.
func guildScope(e *handler.CommandEvent) (string, bool) {
	if e.GuildID() == nil {
		return "", false
	}
	return e.GuildID().String(), true
}
