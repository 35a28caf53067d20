package db

import "context"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		wallet_address TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		token TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS walk_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		total_distance_m DOUBLE PRECISION NOT NULL DEFAULT 0,
		status TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS walk_points (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES walk_sessions(id),
		lat DOUBLE PRECISION NOT NULL,
		lng DOUBLE PRECISION NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		session_id TEXT,
		item_id TEXT,
		recipient TEXT NOT NULL,
		token_amount BIGINT NOT NULL,
		status TEXT NOT NULL,
		tx_hash TEXT,
		failure TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS shop_items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price_tokens BIGINT NOT NULL,
		in_stock BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES shop_items(id),
		wallet_address TEXT NOT NULL,
		settlement_id TEXT NOT NULL REFERENCES settlements(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

type seedItem struct {
	ID    string
	Name  string
	Price int64
}

var seedItems = []seedItem{
	{ID: "iyemon-green-tea", Name: "Iyemon Green Tea", Price: 150},
	{ID: "natural-mineral-water", Name: "Natural Mineral Water", Price: 120},
	{ID: "craft-boss-coffee", Name: "Craft Boss Coffee", Price: 150},
	{ID: "yamazaki-plum-liqueur", Name: "Yamazaki Distillery Plum Liqueur", Price: 1500},
}

// InitSchema creates every table the service uses. Statements are
// idempotent so the tool can run on every deploy.
func InitSchema(ctx context.Context, q Querier) error {
	for _, stmt := range schemaStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// SeedShopItems loads the vending catalog. Existing rows keep their
// stock flag; only name and price are refreshed.
func SeedShopItems(ctx context.Context, q Querier) error {
	for _, item := range seedItems {
		_, err := q.Exec(ctx, `
			INSERT INTO shop_items (id, name, price_tokens)
			VALUES ($1,$2,$3)
			ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, price_tokens=EXCLUDED.price_tokens
		`, item.ID, item.Name, item.Price)
		if err != nil {
			return err
		}
	}
	return nil
}
