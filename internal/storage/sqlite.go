package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "lingobot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is the SQLite-backed persistence layer.
//
// The consumers (selector, eligibility gate, dispatcher, bot commands) each
// depend on a narrow interface that *Store satisfies, so tests can substitute
// in-memory fakes without touching SQL.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Subscriptions ----

func (s *Store) AddSubscription(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(user_id, created_at) VALUES(?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) RemoveSubscription(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE user_id = ?`, userID)
	return err
}

func (s *Store) ListSubscriptions(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM subscriptions ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ---- Feedback ----

func (s *Store) SaveFeedback(ctx context.Context, rec *FeedbackRecord) error {
	if rec == nil || rec.ID == "" {
		return errors.New("feedback record requires an id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Importance <= 0 {
		rec.Importance = 3
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO feedback(id, user_id, created_at, importance, summary) VALUES(?,?,?,?,?)`,
		rec.ID, rec.UserID, rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.Importance, rec.Summary,
	)
	if err != nil {
		return err
	}

	for _, p := range rec.Phrases {
		imp := p.Importance
		if imp <= 0 {
			imp = rec.Importance
		}
		cat := p.Category
		if cat == "" {
			cat = CategoryGeneral
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO phrases(record_id, user_id, original, improved, category, importance, repetitions)
			 VALUES(?,?,?,?,?,?,?)`,
			rec.ID, rec.UserID, p.Original, p.Improved, string(cat), imp, p.Repetitions,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentFeedback returns up to limit feedback records for the user, newest
// first, with their phrases attached.
func (s *Store) RecentFeedback(ctx context.Context, userID int64, limit int) ([]FeedbackRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, created_at, importance, summary
		 FROM feedback WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []FeedbackRecord
	index := map[string]int{}
	for rows.Next() {
		var (
			rec FeedbackRecord
			at  string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &at, &rec.Importance, &rec.Summary); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			rec.CreatedAt = t
		}
		index[rec.ID] = len(recs)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}

	ids := make([]any, 0, len(recs))
	ph := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
		ph = append(ph, "?")
	}
	prows, err := s.db.QueryContext(ctx,
		`SELECT record_id, original, improved, category, importance, repetitions
		 FROM phrases WHERE record_id IN (`+strings.Join(ph, ",")+`) ORDER BY id`,
		ids...,
	)
	if err != nil {
		return nil, err
	}
	defer prows.Close()

	for prows.Next() {
		var (
			recID string
			p     Phrase
			cat   string
		)
		if err := prows.Scan(&recID, &p.Original, &p.Improved, &cat, &p.Importance, &p.Repetitions); err != nil {
			return nil, err
		}
		p.Category = ParseCategory(cat)
		if i, ok := index[recID]; ok {
			recs[i].Phrases = append(recs[i].Phrases, p)
		}
	}
	return recs, prows.Err()
}

// IncrementPhraseRepetition bumps the repetition counter on every stored copy
// of the phrase, so the count survives regardless of which record the next
// selection picks it from.
func (s *Store) IncrementPhraseRepetition(ctx context.Context, userID int64, key PhraseKey) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE phrases SET repetitions = repetitions + 1
		 WHERE user_id = ? AND original = ? AND improved = ?`,
		userID, key.Original, key.Improved,
	)
	return err
}

// ---- Delivery log ----

func (s *Store) AppendDeliveryLog(ctx context.Context, e DeliveryLogEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_log(user_id, type, week, at) VALUES(?,?,?,?)`,
		e.UserID, string(e.Type), e.Week, e.At.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) CountDeliveryLogForWeek(ctx context.Context, userID int64, week int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_log WHERE user_id = ? AND week = ?`,
		userID, week,
	).Scan(&n)
	return n, err
}

// PruneDeliveryLog removes entries older than the cutoff and reports how many
// rows were deleted.
func (s *Store) PruneDeliveryLog(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM delivery_log WHERE at < ?`,
		before.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
