package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/icefez/dispenser/internal/dispenser/service"
	"github.com/icefez/dispenser/internal/dispenser/store"
	"github.com/icefez/dispenser/internal/dispenser/types"
)

func commandDefinitions() []*discordgo.ApplicationCommand {
	minOne := float64(1)
	return []*discordgo.ApplicationCommand{
		{
			Name:        "generate",
			Description: "Generate an account from stock",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "How many accounts (default 1)",
					MinValue:    &minOne,
					MaxValue:    5,
				},
			},
		},
		{
			Name:        "sendaccount",
			Description: "Send an account to a user via DM",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "The user to send an account to",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "How many accounts (default 1)",
					MinValue:    &minOne,
					MaxValue:    5,
				},
			},
		},
		{
			Name:        "stock",
			Description: "Check how many accounts are in stock",
		},
		{
			Name:        "addstock",
			Description: "Upload a .txt file to add accounts to stock",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionAttachment,
					Name:        "file",
					Description: "A .txt file with one account per line (email:password)",
					Required:    true,
				},
			},
		},
		{
			Name:        "genaccess",
			Description: "Grant a user permission to use /generate",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "The user to grant access to",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "duration",
					Description: "How long the access lasts, e.g. 30m, 2h, 1w (default: forever)",
				},
			},
		},
		{
			Name:        "revokeaccess",
			Description: "Remove a user's permission to use /generate",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "The user to revoke access from",
					Required:    true,
				},
			},
		},
		{
			Name:        "listaccess",
			Description: "List all users with granted /generate access",
		},
		{
			Name:        "restock",
			Description: "Return recently distributed accounts to stock",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "window",
					Description: "How far back to look, e.g. 10m, 1h (default 1h)",
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "max",
					Description: "At most this many accounts (default: all in window)",
					MinValue:    &minOne,
				},
			},
		},
	}
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	switch i.ApplicationCommandData().Name {
	case "generate":
		b.handleGenerate(s, i)
	case "sendaccount":
		b.handleSendAccount(s, i)
	case "stock":
		b.handleStock(s, i)
	case "addstock":
		b.handleAddStock(s, i)
	case "genaccess":
		b.handleGenAccess(s, i)
	case "revokeaccess":
		b.handleRevokeAccess(s, i)
	case "listaccess":
		b.handleListAccess(s, i)
	case "restock":
		b.handleRestock(s, i)
	}
}

// ── /generate ────────────────────────────────────────────────────────────────

func (b *Bot) handleGenerate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	user := interactionUser(i)

	decision, err := b.access.Authorize(ctx, user.ID)
	if err != nil {
		b.internalError(s, i, "generate", err)
		return
	}
	if !decision.Authorized() {
		b.respondEmbed(s, i, errorEmbed("No Permission", "You don't have access to `/generate`. Ask an owner."), true)
		return
	}

	amount := intOption(i, "amount", 1)
	dist, err := b.engine.Generate(ctx, types.Recipient{ID: user.ID, Label: user.String()}, amount)
	if err != nil {
		var cd *service.CooldownError
		var insufficient *store.InsufficientStockError
		switch {
		case errors.As(err, &cd):
			b.respondEmbed(s, i, errorEmbed("⏳ Cooldown",
				fmt.Sprintf("Please wait **%ds** before generating again.", cd.RemainingSeconds)), true)
		case errors.Is(err, store.ErrEmptyStock):
			b.respondEmbed(s, i, errorEmbed("Out of Stock", "There are no accounts available right now."), true)
		case errors.As(err, &insufficient):
			b.respondEmbed(s, i, errorEmbed("Not Enough Stock",
				fmt.Sprintf("Only **%d** account(s) left — ask for fewer.", insufficient.Available)), true)
		default:
			b.internalError(s, i, "generate", err)
		}
		return
	}

	b.respondEmbed(s, i, accountEmbed("🎮 Account Generated", dist, "Generated for "+user.String()), true)
}

// ── /sendaccount ─────────────────────────────────────────────────────────────

func (b *Bot) handleSendAccount(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	sender := interactionUser(i)

	if !b.access.IsOwner(sender.ID) {
		b.respondEmbed(s, i, errorEmbed("No Permission", "Only owners can send accounts."), true)
		return
	}

	target := userOption(s, i, "user")
	if target == nil {
		b.respondEmbed(s, i, errorEmbed("Bad Request", "Pick a user to send to."), true)
		return
	}
	amount := intOption(i, "amount", 1)

	delivery, err := b.engine.Send(ctx, types.Recipient{ID: target.ID, Label: target.String()}, sender.ID, amount)
	if err != nil {
		var insufficient *store.InsufficientStockError
		switch {
		case errors.Is(err, store.ErrEmptyStock):
			b.respondEmbed(s, i, errorEmbed("Out of Stock", "There are no accounts available right now."), true)
		case errors.As(err, &insufficient):
			b.respondEmbed(s, i, errorEmbed("Not Enough Stock",
				fmt.Sprintf("Only **%d** account(s) left.", insufficient.Available)), true)
		default:
			b.internalError(s, i, "sendaccount", err)
		}
		return
	}

	// Deliver before committing: the distribution only counts once the DM
	// actually lands.
	if err := b.deliverDM(s, target, delivery, sender); err != nil {
		if rbErr := delivery.Rollback(ctx); rbErr != nil {
			b.logger.Printf("sendaccount rollback: %v", rbErr)
		}
		b.logger.Printf("sendaccount delivery to %s: %v", target.ID, err)
		b.respondEmbed(s, i, errorEmbed("DM Failed",
			fmt.Sprintf("Couldn't DM %s. They may have DMs disabled.", target.Mention())), true)
		return
	}

	if _, err := delivery.Commit(ctx); err != nil {
		b.internalError(s, i, "sendaccount", err)
		return
	}

	b.respondContentEmbed(s, i, target.Mention(), successEmbed(
		"Account Sent!",
		fmt.Sprintf("%s has been sent **%d** account(s) via DM.\nSent by %s",
			target.Mention(), amount, sender.Mention()),
	))
}

func (b *Bot) deliverDM(s *discordgo.Session, target *discordgo.User, delivery *service.Delivery, sender *discordgo.User) error {
	ch, err := s.UserChannelCreate(target.ID)
	if err != nil {
		return err
	}

	dist := types.Distribution{Credentials: delivery.Credentials()}
	_, err = s.ChannelMessageSendEmbed(ch.ID, accountEmbed(
		"🎮 You received an account!", &dist, "Sent by "+sender.String()))
	return err
}

// ── /stock ───────────────────────────────────────────────────────────────────

func (b *Bot) handleStock(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.access.IsOwner(interactionUser(i).ID) {
		b.respondEmbed(s, i, errorEmbed("No Permission", "Only owners can check stock."), true)
		return
	}

	count, err := b.engine.StockCount(context.Background())
	if err != nil {
		b.internalError(s, i, "stock", err)
		return
	}
	b.respondEmbed(s, i, stockEmbed(count), true)
}

// ── /addstock ────────────────────────────────────────────────────────────────

func (b *Bot) handleAddStock(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	if !b.access.IsOwner(interactionUser(i).ID) {
		b.respondEmbed(s, i, errorEmbed("No Permission", "Only owners can add stock."), true)
		return
	}

	att := attachmentOption(i, "file")
	if att == nil {
		b.respondEmbed(s, i, errorEmbed("Invalid File", "Please attach a `.txt` file."), true)
		return
	}
	if !strings.HasSuffix(strings.ToLower(att.Filename), ".txt") {
		b.respondEmbed(s, i, errorEmbed("Invalid File", "Please attach a `.txt` file."), true)
		return
	}

	// The CDN fetch can take a moment; defer so the interaction doesn't
	// time out.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		b.logger.Printf("addstock defer: %v", err)
		return
	}

	text, err := b.fetchAttachment(ctx, att.URL)
	if err != nil {
		b.followupEmbed(s, i, errorEmbed("Error", "Could not read the file: "+err.Error()))
		return
	}

	result, err := b.engine.Ingest(ctx, text)
	if err != nil {
		if errors.Is(err, service.ErrEmptyIngest) {
			b.followupEmbed(s, i, errorEmbed("Empty File", "The file had no valid accounts."))
			return
		}
		b.logger.Printf("addstock ingest: %v", err)
		b.followupEmbed(s, i, errorEmbed("Error", "Something went wrong adding stock."))
		return
	}

	b.followupEmbed(s, i, successEmbed("Stock Updated",
		fmt.Sprintf("Added **%d** account(s).\nTotal stock: **%d**", result.Added, result.Total)))
}

// ── /genaccess ───────────────────────────────────────────────────────────────

func (b *Bot) handleGenAccess(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	caller := interactionUser(i)

	if !b.access.IsOwner(caller.ID) {
		b.respondEmbed(s, i, errorEmbed("No Permission", "Only owners can grant access."), true)
		return
	}

	target := userOption(s, i, "user")
	if target == nil {
		b.respondEmbed(s, i, errorEmbed("Bad Request", "Pick a user to grant access to."), true)
		return
	}

	var ttl *time.Duration
	if raw := stringOption(i, "duration"); raw != "" {
		d, err := service.ParseTTL(raw)
		if err != nil {
			b.respondEmbed(s, i, errorEmbed("Invalid Duration",
				"Use a number and a unit, e.g. `30m`, `2h`, `1w`."), true)
			return
		}
		ttl = &d
	}

	rec, err := b.access.Grant(ctx, target.ID, target.String(), ttl)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyOwner) {
			b.respondEmbed(s, i, errorEmbed("Already Authorized", "That user is already an owner."), true)
			return
		}
		b.internalError(s, i, "genaccess", err)
		return
	}

	desc := fmt.Sprintf("%s can now use `/generate`.\nGranted by %s", target.Mention(), caller.Mention())
	if rec.ExpiresAt != nil {
		desc += fmt.Sprintf("\nExpires %s", discordTimestamp(*rec.ExpiresAt))
	}
	b.respondContentEmbed(s, i, "", successEmbed("Access Granted", desc))
}

// ── /revokeaccess ────────────────────────────────────────────────────────────

func (b *Bot) handleRevokeAccess(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	if !b.access.IsOwner(interactionUser(i).ID) {
		b.respondEmbed(s, i, errorEmbed("No Permission", "Only owners can revoke access."), true)
		return
	}

	target := userOption(s, i, "user")
	if target == nil {
		b.respondEmbed(s, i, errorEmbed("Bad Request", "Pick a user to revoke access from."), true)
		return
	}

	removed, err := b.access.Revoke(ctx, target.ID)
	if err != nil {
		b.internalError(s, i, "revokeaccess", err)
		return
	}
	if !removed {
		b.respondEmbed(s, i, errorEmbed("Not Permitted",
			fmt.Sprintf("%s doesn't have granted access.", target.Mention())), true)
		return
	}

	b.respondContentEmbed(s, i, "", successEmbed("Access Revoked",
		fmt.Sprintf("%s's access has been removed.", target.Mention())))
}

// ── /listaccess ──────────────────────────────────────────────────────────────

func (b *Bot) handleListAccess(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	if !b.access.IsOwner(interactionUser(i).ID) {
		b.respondEmbed(s, i, errorEmbed("No Permission", "Only owners can view this."), true)
		return
	}

	grants, err := b.access.List(ctx)
	if err != nil {
		b.internalError(s, i, "listaccess", err)
		return
	}

	b.respondEmbed(s, i, grantListEmbed(grants), true)
}

// ── /restock ─────────────────────────────────────────────────────────────────

func (b *Bot) handleRestock(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	if !b.access.IsOwner(interactionUser(i).ID) {
		b.respondEmbed(s, i, errorEmbed("No Permission", "Only owners can restock."), true)
		return
	}

	window := time.Hour
	if raw := stringOption(i, "window"); raw != "" {
		d, err := service.ParseTTL(raw)
		if err != nil {
			b.respondEmbed(s, i, errorEmbed("Invalid Duration",
				"Use a number and a unit, e.g. `10m`, `1h`."), true)
			return
		}
		window = d
	}
	maxAmount := intOption(i, "max", 0)

	result, err := b.engine.Restock(ctx, window, maxAmount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoHistory):
			b.respondEmbed(s, i, errorEmbed("No History", "Nothing has been distributed yet."), true)
		case errors.Is(err, service.ErrNoneInWindow):
			b.respondEmbed(s, i, errorEmbed("Nothing to Restock",
				"No accounts were distributed in that window."), true)
		default:
			b.internalError(s, i, "restock", err)
		}
		return
	}

	b.respondContentEmbed(s, i, "", successEmbed("Restocked",
		fmt.Sprintf("Returned **%d** account(s) to the front of stock.\nTotal stock: **%d**",
			result.Restored, result.StockSize)))
}

func (b *Bot) internalError(s *discordgo.Session, i *discordgo.InteractionCreate, cmd string, err error) {
	b.logger.Printf("%s error: %v", cmd, err)
	b.respondEmbed(s, i, errorEmbed("Error", "Something went wrong. Try again later."), true)
}
