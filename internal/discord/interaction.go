package discord

import (
	"github.com/bwmarrin/discordgo"
)

// interactionUser returns the invoking user regardless of whether the
// interaction came from a guild channel or a DM.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

func findOption(i *discordgo.InteractionCreate, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

func intOption(i *discordgo.InteractionCreate, name string, def int) int {
	if opt := findOption(i, name); opt != nil {
		return int(opt.IntValue())
	}
	return def
}

func stringOption(i *discordgo.InteractionCreate, name string) string {
	if opt := findOption(i, name); opt != nil {
		return opt.StringValue()
	}
	return ""
}

func userOption(s *discordgo.Session, i *discordgo.InteractionCreate, name string) *discordgo.User {
	if opt := findOption(i, name); opt != nil {
		return opt.UserValue(s)
	}
	return nil
}

func attachmentOption(i *discordgo.InteractionCreate, name string) *discordgo.MessageAttachment {
	opt := findOption(i, name)
	if opt == nil {
		return nil
	}
	id, ok := opt.Value.(string)
	if !ok {
		return nil
	}
	data := i.ApplicationCommandData()
	if data.Resolved == nil {
		return nil
	}
	return data.Resolved.Attachments[id]
}

func (b *Bot) respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	data := &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{embed},
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		b.logger.Printf("respond: %v", err)
	}
}

// respondContentEmbed posts a public response, optionally with a leading
// content line (used to ping a recipient).
func (b *Bot) respondContentEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, content string, embed *discordgo.MessageEmbed) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Embeds:  []*discordgo.MessageEmbed{embed},
		},
	}); err != nil {
		b.logger.Printf("respond: %v", err)
	}
}

func (b *Bot) followupEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
		Flags:  discordgo.MessageFlagsEphemeral,
	}); err != nil {
		b.logger.Printf("followup: %v", err)
	}
}
