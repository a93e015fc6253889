package contexts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CTAG07/Sundew/pkg/engine"
)

// SetupSchema initializes the tables used by the Store. It is idempotent and
// safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const (
		schemaContexts = `
CREATE TABLE IF NOT EXISTS contexts (
    context_id INTEGER PRIMARY KEY,
    context_name TEXT NOT NULL UNIQUE
);
`
		schemaValues = `
CREATE TABLE IF NOT EXISTS context_values (
    context_id INTEGER NOT NULL,
    var_name TEXT NOT NULL,
    position INTEGER NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (context_id, var_name, position)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaContexts); err != nil {
		return fmt.Errorf("could not create contexts schema: %w", err)
	}
	if _, err = tx.Exec(schemaValues); err != nil {
		return fmt.Errorf("could not create context values schema: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store persists named contexts. It holds the database connection and the
// prepared statements for the read paths. All methods are concurrent-safe.
type Store struct {
	db            *sql.DB
	logger        *slog.Logger
	stmtGetNames  *sql.Stmt
	stmtGetID     *sql.Stmt
	stmtGetValues *sql.Stmt
}

// NewStore prepares the statements used by the Store. SetupSchema must have
// been called on db first.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger}
	var err error

	if s.stmtGetNames, err = db.Prepare("SELECT context_name FROM contexts ORDER BY context_name"); err != nil {
		return nil, fmt.Errorf("failed to prepare names statement: %w", err)
	}
	if s.stmtGetID, err = db.Prepare("SELECT context_id FROM contexts WHERE context_name = ?"); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to prepare id statement: %w", err)
	}
	if s.stmtGetValues, err = db.Prepare("SELECT var_name, value FROM context_values WHERE context_id = ? ORDER BY var_name, position"); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to prepare values statement: %w", err)
	}
	return s, nil
}

// Close releases the prepared statements. It does not close the database.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{s.stmtGetNames, s.stmtGetID, s.stmtGetValues} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// Names returns the names of every stored context in sorted order.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	rows, err := s.stmtGetNames.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	names := []string{}
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Get loads the context stored under name. It returns sql.ErrNoRows if no
// such context exists.
func (s *Store) Get(ctx context.Context, name string) (engine.Context, error) {
	var id int
	if err := s.stmtGetID.QueryRowContext(ctx, name).Scan(&id); err != nil {
		return nil, err
	}

	rows, err := s.stmtGetValues.QueryContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not query values of context '%s': %w", name, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	vars := engine.Context{}
	for rows.Next() {
		var varName, value string
		if err = rows.Scan(&varName, &value); err != nil {
			return nil, err
		}
		vars[varName] = append(vars[varName], value)
	}
	return vars, rows.Err()
}

// Put stores vars under name, replacing any previous content of that
// context. The operation is performed within a transaction.
func (s *Store) Put(ctx context.Context, name string, vars engine.Context) error {
	if name == "" {
		return errors.New("context name must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "INSERT INTO contexts (context_name) VALUES (?) ON CONFLICT(context_name) DO NOTHING", name); err != nil {
		return fmt.Errorf("failed to insert context '%s': %w", name, err)
	}
	var id int
	if err = tx.QueryRowContext(ctx, "SELECT context_id FROM contexts WHERE context_name = ?", name).Scan(&id); err != nil {
		return fmt.Errorf("failed to query context '%s': %w", name, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM context_values WHERE context_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear context '%s': %w", name, err)
	}

	stmtInsert, err := tx.PrepareContext(ctx, "INSERT INTO context_values (context_id, var_name, position, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare value insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsert)

	count := 0
	for varName, values := range vars {
		for pos, value := range values {
			if _, err = stmtInsert.ExecContext(ctx, id, varName, pos, value); err != nil {
				return fmt.Errorf("failed to insert value %d of '%s': %w", pos, varName, err)
			}
			count++
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Context stored",
		slog.String("context_name", name),
		slog.Int("context_id", id),
		slog.Int("variables", len(vars)),
		slog.Int("values", count),
	)
	return nil
}

// Remove deletes a context and all of its values. It returns sql.ErrNoRows
// if no such context exists.
func (s *Store) Remove(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var id int
	if err = tx.QueryRowContext(ctx, "SELECT context_id FROM contexts WHERE context_name = ?", name).Scan(&id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM context_values WHERE context_id = ?", id); err != nil {
		return fmt.Errorf("failed to remove values for context %d: %w", id, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM contexts WHERE context_id = ?", id); err != nil {
		return fmt.Errorf("failed to remove context %d: %w", id, err)
	}

	s.logger.InfoContext(ctx, "Context removed",
		slog.String("context_name", name),
		slog.Int("context_id", id),
	)
	return tx.Commit()
}
