package discord

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/icefez/dispenser/internal/dispenser/store"
	"github.com/icefez/dispenser/internal/dispenser/types"
)

const (
	colorRed     = 0xED4245
	colorGreen   = 0x57F287
	colorBlurple = 0x5865F2
)

func errorEmbed(title, desc string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "❌ " + title,
		Description: desc,
		Color:       colorRed,
	}
}

func successEmbed(title, desc string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "✅ " + title,
		Description: desc,
		Color:       colorGreen,
	}
}

// accountEmbed renders distributed credentials, one field pair per account.
// The secret shows "N/A" when the raw string had no separator.
func accountEmbed(title string, dist *types.Distribution, footer string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     title,
		Color:     colorBlurple,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: footer},
	}

	for _, cred := range dist.Credentials {
		secret := cred.Secret
		if secret == "" {
			secret = "N/A"
		}
		embed.Fields = append(embed.Fields,
			&discordgo.MessageEmbedField{
				Name:  "📧 Email / Username",
				Value: fmt.Sprintf("`%s`", cred.Identifier),
			},
			&discordgo.MessageEmbedField{
				Name:  "🔑 Password",
				Value: fmt.Sprintf("`%s`", secret),
			},
		)
	}

	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "📦 Remaining Stock",
		Value: fmt.Sprintf("%d account(s)", dist.Remaining),
	})
	return embed
}

func stockEmbed(count int) *discordgo.MessageEmbed {
	desc := fmt.Sprintf("There are **%d** account(s) available.", count)
	color := colorGreen
	if count == 0 {
		desc = "Stock is **empty**."
		color = colorRed
	}
	return &discordgo.MessageEmbed{
		Title:       "📦 Stock Status",
		Description: desc,
		Color:       color,
	}
}

func grantListEmbed(grants []store.GrantRecord) *discordgo.MessageEmbed {
	if len(grants) == 0 {
		return &discordgo.MessageEmbed{
			Title:       "📋 Permitted Users",
			Description: "No users granted access yet.",
			Color:       colorBlurple,
		}
	}

	desc := ""
	for _, g := range grants {
		line := fmt.Sprintf("<@%s> (`%s`)", g.Identity, g.Label)
		if g.ExpiresAt != nil {
			line += " — expires " + discordTimestamp(*g.ExpiresAt)
		}
		desc += line + "\n"
	}

	return &discordgo.MessageEmbed{
		Title:       "📋 Permitted Users",
		Description: desc,
		Color:       colorBlurple,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%d user(s) with access", len(grants)),
		},
	}
}

func lowStockEmbed(remaining int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "⚠️ Low Stock",
		Description: fmt.Sprintf("Only **%d** account(s) left. Time to `/addstock`.", remaining),
		Color:       colorRed,
	}
}

// discordTimestamp renders t as Discord's relative timestamp markup.
func discordTimestamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}
