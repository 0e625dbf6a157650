package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket"
)

var Trends = discord.SlashCommandCreate{
	Name:        "trends",
	Description: "📅 Today's trending attributes",
}

func TrendsHandler(b *shadowmarket.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		trend, err := b.Appraiser.EnsureDailyTrend(ctx)
		if err != nil {
			slog.Error("Failed to fetch daily trend",
				slog.String("type", "cmd"),
				slog.Any("error", err))
			return e.CreateMessage(errorEmbed("Failed to fetch today's trends. Please try again later."))
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       fmt.Sprintf("📅 Today's Trends (%s)", trend.DateKey),
				Description: "Submissions carrying these attributes earn a bonus.",
				Color:       0xf1c40f,
				Fields: []discord.EmbedField{
					{Name: "🤸 Pose", Value: fmt.Sprintf("`%s`", trend.Pose)},
					{Name: "👗 Costume", Value: fmt.Sprintf("`%s`", trend.Costume)},
					{Name: "👀 Feature", Value: fmt.Sprintf("`%s`", trend.Body)},
				},
				Footer: &discord.EmbedFooter{
					Text: "Updated daily at 06:00",
				},
			}},
		})
	}
}
