package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
	"github.com/mattn/go-sqlite3"
)

// --- Phase 1: Configuration & Environment ---

type Config struct {
	Token        string
	GuildID      string
	DatabasePath string
	OwnerIDs     []string
	Silent       bool
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("DISCORD_TOKEN")
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	silent, _ := strconv.ParseBool(os.Getenv("SILENT"))

	ownerIDsStr := os.Getenv("OWNER_IDS")
	var ownerIDs []string
	if ownerIDsStr != "" {
		ownerIDs = strings.Split(ownerIDsStr, ",")
		for i := range ownerIDs {
			ownerIDs[i] = strings.TrimSpace(ownerIDs[i])
		}
	}

	cfg := &Config{
		Token:        token,
		GuildID:      os.Getenv("GUILD_ID"),
		DatabasePath: dbPath,
		OwnerIDs:     ownerIDs,
		Silent:       silent,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	return nil
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "ember"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}

// --- Phase 2: Database Connection & Lifecycle ---

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	// The driver registers itself via its init() function
	_ = sqlite3.SQLiteDriver{}

	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	if err := createTables(initCtx, DB); err != nil {
		return err
	}

	migrations := []string{
		"ALTER TABLE guild_levels ADD COLUMN announce_channel_id TEXT",
		"ALTER TABLE giveaways ADD COLUMN winner_count INTEGER DEFAULT 1",
	}

	for _, m := range migrations {
		if _, err := DB.ExecContext(initCtx, m); err != nil {
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

// createTables creates the full schema on the given handle. Tests reuse it
// against an in-memory database.
func createTables(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS user_levels (
			user_id TEXT PRIMARY KEY,
			xp INTEGER NOT NULL DEFAULT 0,
			level INTEGER NOT NULL DEFAULT 1,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS guild_levels (
			guild_id TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 1,
			multiplier REAL NOT NULL DEFAULT 1.0,
			announce_mode TEXT NOT NULL DEFAULT 'current',
			announce_channel_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS level_rewards (
			guild_id TEXT NOT NULL,
			level INTEGER NOT NULL,
			role_id TEXT NOT NULL,
			PRIMARY KEY (guild_id, level)
		)`,
		`CREATE TABLE IF NOT EXISTS economy (
			user_id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL DEFAULT 0,
			last_daily DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS giveaways (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			message_id TEXT,
			host_id TEXT NOT NULL,
			prize TEXT NOT NULL,
			winner_count INTEGER DEFAULT 1,
			ends_at DATETIME NOT NULL,
			finished INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS giveaway_entries (
			giveaway_id INTEGER NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (giveaway_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS polls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			message_id TEXT,
			question TEXT NOT NULL,
			options TEXT NOT NULL,
			ends_at DATETIME,
			closed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS poll_votes (
			poll_id INTEGER NOT NULL,
			user_id TEXT NOT NULL,
			choice INTEGER NOT NULL,
			PRIMARY KEY (poll_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			guild_id TEXT,
			message TEXT NOT NULL,
			remind_at DATETIME NOT NULL,
			send_to TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS guild_configs (
			guild_id TEXT PRIMARY KEY,
			verify_role_id TEXT,
			welcome_channel_id TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	return tx.Commit()
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// --- Phase 3: Infrastructure & Bot Persistence ---

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Phase 4: Guild Configs ---

type GuildConfig struct {
	GuildID          snowflake.ID
	VerifyRoleID     snowflake.ID
	WelcomeChannelID snowflake.ID
}

func GetGuildConfig(ctx context.Context, guildID snowflake.ID) (*GuildConfig, error) {
	var verifyStr, welcomeStr sql.NullString
	err := DB.QueryRowContext(ctx,
		"SELECT verify_role_id, welcome_channel_id FROM guild_configs WHERE guild_id = ?",
		guildID.String()).Scan(&verifyStr, &welcomeStr)
	if err == sql.ErrNoRows {
		return &GuildConfig{GuildID: guildID}, nil
	}
	if err != nil {
		return nil, err
	}

	cfg := &GuildConfig{GuildID: guildID}
	if verifyStr.Valid && verifyStr.String != "" {
		if id, perr := snowflake.Parse(verifyStr.String); perr == nil {
			cfg.VerifyRoleID = id
		}
	}
	if welcomeStr.Valid && welcomeStr.String != "" {
		if id, perr := snowflake.Parse(welcomeStr.String); perr == nil {
			cfg.WelcomeChannelID = id
		}
	}
	return cfg, nil
}

func SetGuildVerifyRole(ctx context.Context, guildID, roleID snowflake.ID) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO guild_configs (guild_id, verify_role_id) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET verify_role_id = excluded.verify_role_id, updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), roleID.String())
	return err
}

func SetGuildWelcomeChannel(ctx context.Context, guildID, channelID snowflake.ID) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO guild_configs (guild_id, welcome_channel_id) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET welcome_channel_id = excluded.welcome_channel_id, updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), channelID.String())
	return err
}
