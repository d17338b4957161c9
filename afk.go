package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

// ===========================
// Command Registration
// ===========================

func init() {
	RegisterCommand(discord.SlashCommandCreate{
		Name:        "afk",
		Description: "Mark yourself as away",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "reason",
				Description: "Why you're away",
				Required:    false,
			},
		},
	}, handleAFK)

	RegisterMessageCreateHandler(onAFKMessage)
}

// ===========================
// Messages
// ===========================

const (
	MsgAFKSet     = "💤 You're now AFK: %s"
	MsgAFKCleared = "Welcome back <@%s>! You were AFK for %s."
	MsgAFKMention = "💤 **%s** is AFK (%s ago): %s"
	MsgAFKDefault = "AFK"
)

// ===========================
// State
// ===========================

type afkEntry struct {
	Reason string
	Since  time.Time
}

var (
	afkMu    sync.RWMutex
	afkUsers = map[snowflake.ID]afkEntry{}
)

func setAFK(userID snowflake.ID, reason string) {
	afkMu.Lock()
	defer afkMu.Unlock()
	afkUsers[userID] = afkEntry{Reason: reason, Since: time.Now().UTC()}
}

func clearAFK(userID snowflake.ID) (afkEntry, bool) {
	afkMu.Lock()
	defer afkMu.Unlock()
	e, ok := afkUsers[userID]
	if ok {
		delete(afkUsers, userID)
	}
	return e, ok
}

func getAFK(userID snowflake.ID) (afkEntry, bool) {
	afkMu.RLock()
	defer afkMu.RUnlock()
	e, ok := afkUsers[userID]
	return e, ok
}

// ===========================
// Handlers
// ===========================

func handleAFK(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()

	reason := MsgAFKDefault
	if r, ok := data.OptString("reason"); ok && strings.TrimSpace(r) != "" {
		reason = Truncate(strings.TrimSpace(r), 100)
	}

	setAFK(event.User().ID, reason)

	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(fmt.Sprintf(MsgAFKSet, reason)).
		SetEphemeral(true).
		Build())
	if err != nil {
		LogAFK("Failed to respond to interaction: %v", err)
	}
}

// onAFKMessage clears the author's AFK state and announces the AFK status
// of anyone they mention.
func onAFKMessage(event *events.MessageCreate) {
	if event.Message.Author.Bot || event.GuildID == nil {
		return
	}

	authorID := event.Message.Author.ID
	if entry, ok := clearAFK(authorID); ok {
		away := FormatDuration(time.Since(entry.Since))
		_, err := event.Client().Rest.CreateMessage(event.ChannelID,
			discord.NewMessageCreateBuilder().
				SetContent(fmt.Sprintf(MsgAFKCleared, authorID, away)).
				Build())
		if err != nil {
			LogAFK("Failed to announce AFK return for %s: %v", authorID, err)
		}
	}

	var notices []string
	for _, mentioned := range event.Message.Mentions {
		if mentioned.ID == authorID {
			continue
		}
		if entry, ok := getAFK(mentioned.ID); ok {
			ago := FormatDuration(time.Since(entry.Since))
			notices = append(notices, fmt.Sprintf(MsgAFKMention, mentioned.EffectiveName(), ago, entry.Reason))
		}
	}
	if len(notices) == 0 {
		return
	}

	_, err := event.Client().Rest.CreateMessage(event.ChannelID,
		discord.NewMessageCreateBuilder().
			SetContent(strings.Join(notices, "\n")).
			SetMessageReferenceByID(event.Message.ID).
			Build())
	if err != nil {
		LogAFK("Failed to post AFK notice: %v", err)
	}
}
