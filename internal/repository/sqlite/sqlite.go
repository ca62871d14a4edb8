// Package sqlite implements the repository interfaces on top of SQLite.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the binary builds without a C
// toolchain and ":memory:" databases make the repository tests fast and
// isolated.
//
// LAYOUT:
// DB owns the connection pool and the schema. Each aggregate gets its own
// small repository type (UserDB, RecipeDB, ...) that shares the pool; they
// are handed out by accessor methods so callers never touch *sql.DB.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps the sql.DB connection pool and hands out repositories.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/foodgram.db" → file-based database
//   - ":memory:"         → in-memory database, used by tests
//
// PRAGMAS GO IN THE DSN:
// sql.DB is a pool. A PRAGMA run with conn.Exec only configures whichever
// pooled connection happened to execute it. The _pragma DSN parameters are
// applied by the driver to every connection it opens, so foreign keys are
// enforced on all of them.
func New(dbPath string) (*DB, error) {
	memory := dbPath == ":memory:"

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every new connection to ":memory:" is a separate, empty database.
	// Pin the pool to one connection so all queries see the same schema.
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() *UserDB { return &UserDB{conn: db.conn} }

func (db *DB) Ingredients() *IngredientDB { return &IngredientDB{conn: db.conn} }

func (db *DB) Recipes() *RecipeDB { return &RecipeDB{conn: db.conn} }

func (db *DB) Subscriptions() *SubscriptionDB { return &SubscriptionDB{conn: db.conn} }

func (db *DB) ShortLinks() *ShortLinkDB { return &ShortLinkDB{conn: db.conn} }

func (db *DB) Favorites() *RelationDB {
	return &RelationDB{
		conn:       db.conn,
		table:      "favorites",
		existsMsg:  "recipe is already in favorites",
		missingMsg: "recipe is not in favorites",
	}
}

func (db *DB) ShoppingCart() *CartDB {
	return &CartDB{RelationDB: &RelationDB{
		conn:       db.conn,
		table:      "shopping_cart",
		existsMsg:  "recipe is already in the shopping cart",
		missingMsg: "recipe is not in the shopping cart",
	}}
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent,
// so it runs on every start.
//
// Every table that references users or recipes cascades on delete: removing
// an author removes their recipes, and removing a recipe removes its links,
// favorites, cart rows and short link.
func (db *DB) migrate() error {
	statements := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				email         TEXT NOT NULL UNIQUE,
				username      TEXT NOT NULL UNIQUE,
				first_name    TEXT NOT NULL DEFAULT '',
				last_name     TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL DEFAULT '',
				avatar        TEXT NOT NULL DEFAULT '',
				github_id     INTEGER UNIQUE,
				created_at    DATETIME NOT NULL,
				updated_at    DATETIME NOT NULL
			)`},
		{"ingredients", `
			CREATE TABLE IF NOT EXISTS ingredients (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				name             TEXT NOT NULL,
				name_lower       TEXT NOT NULL,
				measurement_unit TEXT NOT NULL,
				UNIQUE (name, measurement_unit)
			);
			CREATE INDEX IF NOT EXISTS idx_ingredients_name_lower ON ingredients(name_lower)`},
		{"recipes", `
			CREATE TABLE IF NOT EXISTS recipes (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				author_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				name         TEXT NOT NULL,
				text         TEXT NOT NULL,
				cooking_time INTEGER NOT NULL CHECK (cooking_time BETWEEN 1 AND 32767),
				image        TEXT NOT NULL DEFAULT '',
				created_at   DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_recipes_author_id ON recipes(author_id);
			CREATE INDEX IF NOT EXISTS idx_recipes_created_at ON recipes(created_at)`},
		{"recipe_ingredients", `
			CREATE TABLE IF NOT EXISTS recipe_ingredients (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				recipe_id     INTEGER NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
				ingredient_id INTEGER NOT NULL REFERENCES ingredients(id),
				amount        INTEGER NOT NULL CHECK (amount BETWEEN 1 AND 32000),
				UNIQUE (recipe_id, ingredient_id)
			)`},
		{"favorites", `
			CREATE TABLE IF NOT EXISTS favorites (
				user_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				recipe_id INTEGER NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
				PRIMARY KEY (user_id, recipe_id)
			)`},
		{"shopping_cart", `
			CREATE TABLE IF NOT EXISTS shopping_cart (
				user_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				recipe_id INTEGER NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
				PRIMARY KEY (user_id, recipe_id)
			)`},
		{"subscriptions", `
			CREATE TABLE IF NOT EXISTS subscriptions (
				user_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				author_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				PRIMARY KEY (user_id, author_id),
				CHECK (user_id <> author_id)
			)`},
		{"short_links", `
			CREATE TABLE IF NOT EXISTS short_links (
				code      TEXT PRIMARY KEY,
				recipe_id INTEGER NOT NULL UNIQUE REFERENCES recipes(id) ON DELETE CASCADE
			)`},
	}

	for _, st := range statements {
		if _, err := db.conn.Exec(st.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", st.name, err)
		}
	}

	return nil
}

// withTx runs fn inside a transaction and commits if fn returns nil.
//
// fn must only use tx. On an in-memory database the pool holds a single
// connection, and that connection is busy for the lifetime of the tx.
func withTx(ctx context.Context, conn *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure. Concurrent inserts of the same pair race at the
// database; the loser ends up here and is reported as a conflict.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isForeignKeyViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

func isCheckViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_CHECK
}
