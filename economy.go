package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
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
		Name:        "balance",
		Description: "Check a member's coin balance",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionUser{
				Name:        "user",
				Description: "The member to check (defaults to you)",
				Required:    false,
			},
		},
	}, handleBalance)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "daily",
		Description: "Claim your daily coins",
	}, handleDaily)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "pay",
		Description: "Send coins to another member",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionUser{
				Name:        "user",
				Description: "The recipient",
				Required:    true,
			},
			discord.ApplicationCommandOptionInt{
				Name:        "amount",
				Description: "How many coins to send",
				Required:    true,
			},
		},
	}, handlePay)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "richest",
		Description: "Show the wealthiest members",
	}, handleRichest)
}

// ===========================
// Messages
// ===========================

const (
	DailyBaseReward = 100
	DailyLevelBonus = 10
	DailyCooldown   = 24 * time.Hour

	MsgEconomyBalance      = "💰 **%s** has **%d** coins."
	MsgEconomyDailyClaimed = "💰 You claimed **%d** coins (base %d + level bonus %d). Balance: **%d**."
	MsgEconomyDailyWait    = "You already claimed today. Come back in **%s**."
	MsgEconomyPaid         = "💸 Sent **%d** coins to <@%s>. Your balance: **%d**."
	MsgEconomyRichestHead  = "**Richest Members**\n\n"
	MsgEconomyRichestItem  = "**#%d** <@%s> — %d coins\n"
	MsgEconomyRichestEmpty = "Nobody has any coins yet. Try `/daily`."

	ErrEconomyStoreFailed  = "The economy store is unavailable. Please try again."
	ErrEconomyBadAmount    = "The amount must be a positive number."
	ErrEconomySelfPay      = "You cannot pay yourself."
	ErrEconomyBotPay       = "Bots have no use for coins."
	ErrEconomyInsufficient = "You only have **%d** coins."
)

// ErrInsufficientFunds marks a transfer the sender cannot cover.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ===========================
// Store
// ===========================

// GetBalance returns the user's balance, zero for unknown users.
func GetBalance(ctx context.Context, userID snowflake.ID) (int, error) {
	var balance int
	err := DB.QueryRowContext(ctx,
		"SELECT balance FROM economy WHERE user_id = ?", userID.String()).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}

// AdjustBalance applies a signed delta, creating the row on first contact.
func AdjustBalance(ctx context.Context, userID snowflake.ID, delta int) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO economy (user_id, balance) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET balance = balance + excluded.balance
	`, userID.String(), delta)
	return err
}

// ClaimDaily atomically checks the 24h window and credits the reward.
// Returns the remaining wait when the claim is too early.
func ClaimDaily(ctx context.Context, userID snowflake.ID, reward int) (newBalance int, wait time.Duration, err error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	var balance int
	var lastDaily sql.NullTime
	err = tx.QueryRowContext(ctx,
		"SELECT balance, last_daily FROM economy WHERE user_id = ?", userID.String()).Scan(&balance, &lastDaily)
	if err != nil && err != sql.ErrNoRows {
		return 0, 0, err
	}

	now := time.Now().UTC()
	if lastDaily.Valid {
		if next := lastDaily.Time.Add(DailyCooldown); now.Before(next) {
			return balance, next.Sub(now), nil
		}
	}

	newBalance = balance + reward
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO economy (user_id, balance, last_daily) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET balance = excluded.balance, last_daily = excluded.last_daily
	`, userID.String(), newBalance, now); err != nil {
		return 0, 0, err
	}

	return newBalance, 0, tx.Commit()
}

// Transfer moves coins between two users in one transaction. Fails without
// touching balances when the sender cannot cover the amount.
func Transfer(ctx context.Context, from, to snowflake.ID, amount int) (senderBalance int, err error) {
	if amount <= 0 {
		return 0, fmt.Errorf("transfer amount must be positive, got %d", amount)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var balance int
	err = tx.QueryRowContext(ctx,
		"SELECT balance FROM economy WHERE user_id = ?", from.String()).Scan(&balance)
	if err == sql.ErrNoRows {
		balance = 0
	} else if err != nil {
		return 0, err
	}

	if balance < amount {
		return balance, ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE economy SET balance = balance - ? WHERE user_id = ?", amount, from.String()); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO economy (user_id, balance) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET balance = balance + excluded.balance
	`, to.String(), amount); err != nil {
		return 0, err
	}

	return balance - amount, tx.Commit()
}

// TopBalances returns the wealthiest users, richest first.
func TopBalances(ctx context.Context, limit int) ([]struct {
	UserID  snowflake.ID
	Balance int
}, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT user_id, balance FROM economy
		WHERE balance > 0
		ORDER BY balance DESC, user_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []struct {
		UserID  snowflake.ID
		Balance int
	}
	for rows.Next() {
		var idStr string
		var balance int
		if err := rows.Scan(&idStr, &balance); err != nil {
			return nil, err
		}
		id, perr := snowflake.Parse(idStr)
		if perr != nil {
			continue
		}
		out = append(out, struct {
			UserID  snowflake.ID
			Balance int
		}{id, balance})
	}
	return out, rows.Err()
}

// ===========================
// Command Handlers
// ===========================

func economyRespond(event *events.ApplicationCommandInteractionCreate, content string, ephemeral bool) {
	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(
			discord.NewContainer(
				discord.NewTextDisplay(content),
			),
		).
		SetEphemeral(ephemeral).
		Build())
	if err != nil {
		LogEconomy("Failed to respond to interaction: %v", err)
	}
}

func handleBalance(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()

	target := event.User()
	if u, ok := data.OptUser("user"); ok {
		target = u
	}

	balance, err := GetBalance(AppContext, target.ID)
	if err != nil {
		LogEconomy("Balance lookup failed for %s: %v", target.ID, err)
		economyRespond(event, ErrEconomyStoreFailed, true)
		return
	}

	economyRespond(event, fmt.Sprintf(MsgEconomyBalance, target.EffectiveName(), balance), false)
}

// handleDaily credits the base reward plus a bonus per progression level,
// tying the economy to the leveling engine.
func handleDaily(event *events.ApplicationCommandInteractionCreate) {
	userID := event.User().ID

	bonus := 0
	if prog, err := Levels.GetOrCreateProgress(AppContext, userID); err == nil {
		bonus = (prog.Level - 1) * DailyLevelBonus
	}
	reward := DailyBaseReward + bonus

	newBalance, wait, err := ClaimDaily(AppContext, userID, reward)
	if err != nil {
		LogEconomy("Daily claim failed for %s: %v", userID, err)
		economyRespond(event, ErrEconomyStoreFailed, true)
		return
	}
	if wait > 0 {
		economyRespond(event, fmt.Sprintf(MsgEconomyDailyWait, FormatDuration(wait)), true)
		return
	}

	economyRespond(event, fmt.Sprintf(MsgEconomyDailyClaimed, reward, DailyBaseReward, bonus, newBalance), false)
}

func handlePay(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()

	recipient := data.User("user")
	amount := data.Int("amount")
	sender := event.User().ID

	if amount <= 0 {
		economyRespond(event, ErrEconomyBadAmount, true)
		return
	}
	if recipient.ID == sender {
		economyRespond(event, ErrEconomySelfPay, true)
		return
	}
	if recipient.Bot {
		economyRespond(event, ErrEconomyBotPay, true)
		return
	}

	newBalance, err := Transfer(AppContext, sender, recipient.ID, amount)
	if errors.Is(err, ErrInsufficientFunds) {
		economyRespond(event, fmt.Sprintf(ErrEconomyInsufficient, newBalance), true)
		return
	}
	if err != nil {
		LogEconomy("Transfer from %s to %s failed: %v", sender, recipient.ID, err)
		economyRespond(event, ErrEconomyStoreFailed, true)
		return
	}

	economyRespond(event, fmt.Sprintf(MsgEconomyPaid, amount, recipient.ID, newBalance), false)
}

func handleRichest(event *events.ApplicationCommandInteractionCreate) {
	top, err := TopBalances(AppContext, 10)
	if err != nil {
		LogEconomy("Richest query failed: %v", err)
		economyRespond(event, ErrEconomyStoreFailed, true)
		return
	}

	if len(top) == 0 {
		economyRespond(event, MsgEconomyRichestEmpty, true)
		return
	}

	var sb strings.Builder
	sb.WriteString(MsgEconomyRichestHead)
	for i, e := range top {
		sb.WriteString(fmt.Sprintf(MsgEconomyRichestItem, i+1, e.UserID, e.Balance))
	}
	economyRespond(event, sb.String(), false)
}
