// Package ledger is the durable, append-only store of episode records.
//
// Every call is a round-trip to the datastore; nothing is cached. Reads match on
// the integer (season, episode) pair so "S01E05" and "S1E5" find the same
// records.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/d3vgru/easy-peasy-bot/db"
	"github.com/d3vgru/easy-peasy-bot/recap"
	"github.com/d3vgru/easy-peasy-bot/telemetry"
)

const recordColumns = `id, author, production_code, season, episode, synopsis, posted_at, source_user, source_channel`

// Ledger appends and looks up episode records in one datastore.
type Ledger struct {
	db      *sql.DB
	dialect db.Dialect

	mu      sync.Mutex
	authErr *AuthError
}

// New returns a Ledger over an open, migrated store.
func New(database *sql.DB, dialect db.Dialect) *Ledger {
	return &Ledger{db: database, dialect: dialect}
}

// DB exposes the underlying handle for health checks.
func (l *Ledger) DB() *sql.DB { return l.db }

// Dialect reports the SQL flavour of the store.
func (l *Ledger) Dialect() db.Dialect { return l.dialect }

// AuthFailed returns the sticky credential failure, if any.
func (l *Ledger) AuthFailed() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.authErr == nil {
		return nil
	}
	return l.authErr
}

// Reject latches a credential rejection seen outside the ledger, such as while
// connecting at startup. Every later call fails fast with it.
func (l *Ledger) Reject(err error) error {
	if !IsAuth(err) {
		err = &AuthError{Err: err}
	}
	return l.fail("authenticate", err)
}

func (l *Ledger) check() error {
	return l.AuthFailed()
}

// fail classifies err and latches the first AuthError seen.
func (l *Ledger) fail(op string, err error) error {
	cerr := classify(op, err)
	var ae *AuthError
	if errors.As(cerr, &ae) {
		l.mu.Lock()
		if l.authErr == nil {
			l.authErr = ae
			telemetry.SetLedgerAuthFailed(true)
			slog.Error("datastore rejected credentials; ledger disabled until restart",
				slog.Any("err", ae.Err), slog.String("component", "ledger"))
		} else {
			ae = l.authErr
		}
		l.mu.Unlock()
		return ae
	}
	return cerr
}

func (l *Ledger) q(query string) string { return l.dialect.Rebind(query) }

// Authenticate verifies the shared secret by pinging the store.
func (l *Ledger) Authenticate(ctx context.Context) error {
	if err := l.check(); err != nil {
		return err
	}
	defer telemetry.ObserveLedger("authenticate", time.Now())
	if err := l.db.PingContext(ctx); err != nil {
		return l.fail("authenticate", err)
	}
	return nil
}

// Append inserts rec and returns its store-assigned id. Existing records are
// never touched; appending the same code twice yields two records.
func (l *Ledger) Append(ctx context.Context, rec recap.Record) (string, error) {
	if err := l.check(); err != nil {
		return "", err
	}
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerLedger, "ledger.append", telemetry.CodeAttr(rec.ProductionCode))
	defer span.End()
	defer telemetry.ObserveLedger("append", time.Now())

	var id int64
	err := l.db.QueryRowContext(ctx, l.q(`INSERT INTO episodes
		(author, production_code, season, episode, synopsis, posted_at, source_user, source_channel)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		rec.Author, rec.ProductionCode, rec.Season, rec.Episode, rec.Synopsis,
		rec.PostedAt, rec.SourceUser, rec.SourceChannel,
	).Scan(&id)
	if err != nil {
		err = l.fail("append", err)
		telemetry.RecordError(span, err)
		return "", err
	}
	telemetry.SetSpanSuccess(span)
	return strconv.FormatInt(id, 10), nil
}

// FindByProductionCode returns the best record for code: the latest posted_at,
// then the most recently written. found is false when nothing matches or the
// code does not parse.
func (l *Ledger) FindByProductionCode(ctx context.Context, code string) (rec recap.Record, found bool, err error) {
	if err := l.check(); err != nil {
		return recap.Record{}, false, err
	}
	season, episode, ok := recap.ParseCode(code)
	if !ok {
		return recap.Record{}, false, nil
	}
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerLedger, "ledger.find_by_code", telemetry.CodeAttr(code))
	defer span.End()
	defer telemetry.ObserveLedger("find_by_code", time.Now())

	row := l.db.QueryRowContext(ctx, l.q(`SELECT `+recordColumns+` FROM episodes
		WHERE season = ? AND episode = ?
		ORDER BY posted_at DESC, id DESC LIMIT 1`), season, episode)
	rec, err = scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return recap.Record{}, false, nil
	}
	if err != nil {
		err = l.fail("find_by_code", err)
		telemetry.RecordError(span, err)
		return recap.Record{}, false, err
	}
	return rec, true, nil
}

// FindBySeason yields the season's records ordered by episode, then posted_at,
// then write order. The sequence is lazy and restartable: each range runs the
// query again. A failure is yielded once as the final element.
func (l *Ledger) FindBySeason(ctx context.Context, season int) iter.Seq2[recap.Record, error] {
	return func(yield func(recap.Record, error) bool) {
		if err := l.check(); err != nil {
			yield(recap.Record{}, err)
			return
		}
		ctx, span := telemetry.StartSpan(ctx, telemetry.TracerLedger, "ledger.find_by_season", telemetry.SeasonAttr(season))
		defer span.End()
		defer telemetry.ObserveLedger("find_by_season", time.Now())
		rows, err := l.db.QueryContext(ctx, l.q(`SELECT `+recordColumns+` FROM episodes
			WHERE season = ?
			ORDER BY episode ASC, posted_at ASC, id ASC`), season)
		if err != nil {
			err = l.fail("find_by_season", err)
			telemetry.RecordError(span, err)
			yield(recap.Record{}, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				yield(recap.Record{}, l.fail("find_by_season", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(recap.Record{}, l.fail("find_by_season", err))
		}
	}
}

// Recent returns up to limit records, most recently written first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]recap.Record, error) {
	if err := l.check(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	defer telemetry.ObserveLedger("recent", time.Now())
	rows, err := l.db.QueryContext(ctx, l.q(`SELECT `+recordColumns+` FROM episodes ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, l.fail("recent", err)
	}
	defer rows.Close()
	out := make([]recap.Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, l.fail("recent", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, l.fail("recent", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (recap.Record, error) {
	var (
		rec recap.Record
		id  int64
	)
	if err := s.Scan(&id, &rec.Author, &rec.ProductionCode, &rec.Season, &rec.Episode,
		&rec.Synopsis, &rec.PostedAt, &rec.SourceUser, &rec.SourceChannel); err != nil {
		return recap.Record{}, err
	}
	rec.ID = strconv.FormatInt(id, 10)
	return rec, nil
}
