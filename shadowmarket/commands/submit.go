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
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/dedup"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/services"
)

var Submit = discord.SlashCommandCreate{
	Name:        "submit",
	Description: "📦 Broker an image into the market",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionAttachment{
			Name:        "image",
			Description: "The image to broker",
			Required:    true,
		},
	},
}

func SubmitHandler(b *shadowmarket.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guild, ok := guildScope(e)
		if !ok {
			return e.CreateMessage(errorEmbed("The market only operates inside a server."))
		}

		attachment := e.SlashCommandInteractionData().Attachment("image")

		// Valuation can take a while; ack now, answer when done
		if err := e.DeferCreateMessage(false); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		start := time.Now()
		sub, err := b.Broker.Submit(ctx, e.User().ID.String(), guild, attachment.URL)
		if err != nil {
			return respondSubmitError(e, err)
		}

		slog.Info("Command completed",
			slog.String("type", "cmd"),
			slog.String("name", "submit"),
			slog.Duration("total_time", time.Since(start)))

		quote := sub.Quote
		embed := discord.NewEmbedBuilder().
			SetTitle(fmt.Sprintf("📦 Smuggled In — No.%d", sub.Item.ID)).
			SetColor(SuccessColor).
			SetImage(sub.Item.ContentURL).
			AddField("Grade", fmt.Sprintf("**%s** (%.2f)", quote.Grade, quote.Score), true).
			AddField("Your Payout", fmt.Sprintf("%d 💰", quote.FinalPrice), true).
			AddField("Listed At", fmt.Sprintf("%d 💰", sub.Item.Price), true)

		if quote.TrendMatches > 0 {
			embed.AddField("Trend Bonus", fmt.Sprintf("+%d 💰 (%d match)", quote.TrendBonus, quote.TrendMatches), true)
		}
		if quote.CharacterBonus > 0 {
			embed.AddField("Character Bonus", fmt.Sprintf("+%d 💰", quote.CharacterBonus), true)
		}
		if quote.RarityMultiplier > 1.0 {
			embed.AddField("Rarity", fmt.Sprintf("×%.1f", quote.RarityMultiplier), true)
		}

		_, err = e.UpdateInteractionResponse(discord.MessageUpdate{
			Embeds: &[]discord.Embed{embed.Build()},
		})
		return err
	}
}

func respondSubmitError(e *handler.CommandEvent, err error) error {
	var dup *dedup.DuplicateError
	description := "Submission failed. Please try again later."

	switch {
	case errors.As(err, &dup):
		if dup.ExactURL {
			description = fmt.Sprintf("⛔ This content was already brokered as item No.%d.", dup.ItemID)
		} else {
			description = fmt.Sprintf("⛔ Too similar to item No.%d (distance %d).", dup.ItemID, dup.Distance)
		}
	case errors.Is(err, services.ErrNotImage):
		description = "That attachment is not a decodable image."
	case errors.Is(err, services.ErrContentTooBig):
		description = "That file is too large to broker."
	case errors.Is(err, services.ErrFetchFailed):
		description = "Could not download the attachment."
	default:
		slog.Error("Submission failed",
			slog.String("type", "cmd"),
			slog.Any("error", err))
	}

	_, updErr := e.UpdateInteractionResponse(discord.MessageUpdate{
		Embeds: &[]discord.Embed{{
			Title:       "Submission Rejected",
			Description: description,
			Color:       ErrorColor,
		}},
	})
	return updErr
}
