package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/storage/models"
	"github.com/farmora/backend/pkg/logger"
)

const dateLayout = "2006-01-02"

type Client struct {
	db    *sql.DB
	clock clockwork.Clock
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db, clock: clockwork.NewRealClock()}, nil
}

// WithClock replaces the clock used for recorded_at stamps.
func (c *Client) WithClock(clock clockwork.Clock) *Client {
	c.clock = clock
	return c
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		commodity TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT '',
		district TEXT NOT NULL DEFAULT '',
		market TEXT NOT NULL,
		variety TEXT,
		price_date TEXT NOT NULL,
		min_price REAL,
		max_price REAL,
		modal_price REAL NOT NULL,
		recorded_at INTEGER NOT NULL,
		UNIQUE (commodity, market, variety, price_date)
	);
	CREATE INDEX IF NOT EXISTS idx_prices_commodity_state ON price_history(commodity, state);
	CREATE INDEX IF NOT EXISTS idx_prices_date ON price_history(price_date);

	CREATE TABLE IF NOT EXISTS query_traces (
		query_id TEXT PRIMARY KEY,
		user_id TEXT,
		question TEXT NOT NULL,
		language TEXT,
		intent_label TEXT,
		final_state TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error_kind TEXT,
		degraded INTEGER DEFAULT 0,
		confidence REAL,
		sources TEXT,
		latency_ms INTEGER,
		started_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_traces_started ON query_traces(started_at);
	CREATE INDEX IF NOT EXISTS idx_traces_outcome ON query_traces(outcome);

	CREATE TABLE IF NOT EXISTS trace_transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		verdict TEXT,
		reason TEXT,
		at INTEGER NOT NULL,
		FOREIGN KEY (query_id) REFERENCES query_traces(query_id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_transitions_query ON trace_transitions(query_id);

	CREATE TABLE IF NOT EXISTS trace_tool_calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		tier TEXT,
		error TEXT,
		FOREIGN KEY (query_id) REFERENCES query_traces(query_id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_query ON trace_tool_calls(query_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// RecordPrices upserts scraped quotes. Names are stored in canonical case so
// lookups can match them exactly.
func (c *Client) RecordPrices(ctx context.Context, state, district, commodity string, quotes []domain.PriceQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_history (commodity, state, district, market, variety, price_date,
			min_price, max_price, modal_price, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(commodity, market, variety, price_date) DO UPDATE SET
			min_price = excluded.min_price,
			max_price = excluded.max_price,
			modal_price = excluded.modal_price,
			recorded_at = excluded.recorded_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare price insert: %w", err)
	}
	defer stmt.Close()

	now := c.clock.Now().Unix()
	for _, q := range quotes {
		_, err := stmt.ExecContext(ctx,
			strings.ToLower(commodity),
			strings.ToLower(state),
			strings.ToLower(district),
			q.Market,
			q.Variety,
			q.Date,
			q.MinPrice,
			q.MaxPrice,
			q.ModalPrice,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert price: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prices: %w", err)
	}

	logger.Debug("Prices recorded",
		zap.String("commodity", commodity),
		zap.String("state", state),
		zap.Int("count", len(quotes)),
	)
	return nil
}

// LatestPrices returns up to limit quotes dated on or after since, newest
// first. An empty state matches every state.
func (c *Client) LatestPrices(ctx context.Context, commodity, state string, since time.Time, limit int) ([]domain.PriceQuote, error) {
	query := `
		SELECT market, variety, price_date, min_price, max_price, modal_price
		FROM price_history
		WHERE commodity = ? AND (? = '' OR state = ?) AND price_date >= ?
		ORDER BY price_date DESC, recorded_at DESC
		LIMIT ?
	`

	state = strings.ToLower(state)
	rows, err := c.db.QueryContext(ctx, query, strings.ToLower(commodity), state, state, since.Format(dateLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get prices: %w", err)
	}
	defer rows.Close()

	var quotes []domain.PriceQuote
	for rows.Next() {
		var q domain.PriceQuote
		var variety sql.NullString
		var minPrice, maxPrice sql.NullFloat64

		err := rows.Scan(&q.Market, &variety, &q.Date, &minPrice, &maxPrice, &q.ModalPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		q.Variety = variety.String
		q.MinPrice = minPrice.Float64
		q.MaxPrice = maxPrice.Float64
		quotes = append(quotes, q)
	}

	return quotes, rows.Err()
}

// ExportTrace stores a finished query trace with its transitions and tool calls.
func (c *Client) ExportTrace(ctx context.Context, t models.TraceRecord) error {
	sourcesJSON, err := json.Marshal(t.Sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	degraded := 0
	if t.Degraded {
		degraded = 1
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO query_traces (query_id, user_id, question, language, intent_label, final_state,
			outcome, error_kind, degraded, confidence, sources, latency_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.QueryID,
		t.UserID,
		t.Question,
		t.Language,
		t.IntentLabel,
		t.FinalState,
		t.Outcome,
		t.ErrorKind,
		degraded,
		t.Confidence,
		string(sourcesJSON),
		t.LatencyMS,
		t.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trace: %w", err)
	}

	for i, tr := range t.Transitions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trace_transitions (query_id, seq, from_state, to_state, verdict, reason, at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, t.QueryID, i, tr.From, tr.To, tr.Verdict, tr.Reason, tr.At.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert transition: %w", err)
		}
	}

	for _, tc := range t.ToolResults {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trace_tool_calls (query_id, kind, status, tier, error)
			VALUES (?, ?, ?, ?, ?)
		`, t.QueryID, tc.Kind, tc.Status, tc.Tier, tc.Error)
		if err != nil {
			return fmt.Errorf("failed to insert tool call: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace: %w", err)
	}

	logger.Debug("Trace exported",
		zap.String("query_id", t.QueryID),
		zap.String("outcome", t.Outcome),
		zap.Int("transitions", len(t.Transitions)),
	)
	return nil
}

// RecentTraces returns the newest traces with their transitions. Tool calls
// are not loaded.
func (c *Client) RecentTraces(ctx context.Context, limit int) ([]models.TraceRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT query_id, user_id, question, language, intent_label, final_state, outcome,
			error_kind, degraded, confidence, sources, latency_ms, started_at
		FROM query_traces
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get traces: %w", err)
	}

	var traces []models.TraceRecord
	for rows.Next() {
		var t models.TraceRecord
		var userID, language, intentLabel, errorKind, sourcesJSON sql.NullString
		var degraded int
		var startedAt int64

		err := rows.Scan(&t.QueryID, &userID, &t.Question, &language, &intentLabel, &t.FinalState,
			&t.Outcome, &errorKind, &degraded, &t.Confidence, &sourcesJSON, &t.LatencyMS, &startedAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		t.UserID = userID.String
		t.Language = language.String
		t.IntentLabel = intentLabel.String
		t.ErrorKind = errorKind.String
		t.Degraded = degraded == 1
		t.StartedAt = time.UnixMilli(startedAt)
		if sourcesJSON.Valid {
			json.Unmarshal([]byte(sourcesJSON.String), &t.Sources)
		}
		traces = append(traces, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range traces {
		traces[i].Transitions, err = c.transitions(ctx, traces[i].QueryID)
		if err != nil {
			return nil, err
		}
	}
	return traces, nil
}

func (c *Client) transitions(ctx context.Context, queryID string) ([]models.Transition, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT from_state, to_state, verdict, reason, at
		FROM trace_transitions
		WHERE query_id = ?
		ORDER BY seq
	`, queryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transitions: %w", err)
	}
	defer rows.Close()

	var out []models.Transition
	for rows.Next() {
		var tr models.Transition
		var verdict, reason sql.NullString
		var at int64
		if err := rows.Scan(&tr.From, &tr.To, &verdict, &reason, &at); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		tr.Verdict = verdict.String
		tr.Reason = reason.String
		tr.At = time.UnixMilli(at)
		out = append(out, tr)
	}
	return out, rows.Err()
}
