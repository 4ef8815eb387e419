package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d3vgru/easy-peasy-bot/recap"
	"github.com/d3vgru/easy-peasy-bot/testutil"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	database, dialect := testutil.SetupSQLite(t)
	return New(database, dialect)
}

func mustRecord(t *testing.T, text, author, postedAt string) recap.Record {
	t.Helper()
	r, ok := recap.Parse(text)
	require.True(t, ok, text)
	return recap.NewRecord(r, author, postedAt, "U-"+author, "C-general")
}

func TestAppendAssignsDistinctIDs(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	rec := mustRecord(t, "S01E05: The one with the thing", "John", "1700000000.000100")
	id1, err := l.Append(ctx, rec)
	require.NoError(t, err)
	id2, err := l.Append(ctx, rec)
	require.NoError(t, err)

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2, "re-announcing must append, not overwrite")
}

func TestFindByProductionCodeRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	rec := mustRecord(t, "S01E05: The one with the thing", "John", "1700000000.000100")
	id, err := l.Append(ctx, rec)
	require.NoError(t, err)

	for _, code := range []string{"S01E05", "S1E5", "S001E005"} {
		got, found, err := l.FindByProductionCode(ctx, code)
		require.NoError(t, err, code)
		require.True(t, found, code)
		want := rec
		want.ID = id
		assert.Equal(t, want, got, code)
	}
}

func TestFindByProductionCodeTieBreak(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, mustRecord(t, "S02E01: later post", "Ed", "1700000200.000000"))
	require.NoError(t, err)
	_, err = l.Append(ctx, mustRecord(t, "S02E01: earlier post", "John", "1700000100.000000"))
	require.NoError(t, err)

	got, found, err := l.FindByProductionCode(ctx, "S02E01")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "later post", got.Synopsis, "highest posted_at wins")

	// same posted_at: most recently written wins
	_, err = l.Append(ctx, mustRecord(t, "S02E01: rewrite", "Ed", "1700000200.000000"))
	require.NoError(t, err)
	got, found, err = l.FindByProductionCode(ctx, "S2E1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "rewrite", got.Synopsis)
}

func TestFindByProductionCodeNotFound(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, mustRecord(t, "S01E05: x", "John", "1"))
	require.NoError(t, err)

	for _, code := range []string{"S99E99", "garbage", "", "s01e05"} {
		_, found, err := l.FindByProductionCode(ctx, code)
		require.NoError(t, err, code)
		assert.False(t, found, code)
	}
}

func TestFindBySeasonOrdering(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for _, in := range []struct{ text, at string }{
		{"S03E10: ten", "5"},
		{"S03E02: two late", "9"},
		{"S03E02: two early", "3"},
		{"S04E01: other season", "1"},
		{"S03E01: one", "7"},
	} {
		_, err := l.Append(ctx, mustRecord(t, in.text, "John", in.at))
		require.NoError(t, err)
	}

	var synopses []string
	for rec, err := range l.FindBySeason(ctx, 3) {
		require.NoError(t, err)
		assert.Equal(t, 3, rec.Season)
		synopses = append(synopses, rec.Synopsis)
	}
	assert.Equal(t, []string{"one", "two early", "two late", "ten"}, synopses)
}

func TestFindBySeasonRestartableAndEarlyStop(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	for _, text := range []string{"S05E01: a", "S05E02: b", "S05E03: c"} {
		_, err := l.Append(ctx, mustRecord(t, text, "Ed", "1"))
		require.NoError(t, err)
	}

	seq := l.FindBySeason(ctx, 5)
	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 3, count())
	assert.Equal(t, 3, count(), "second range re-runs the query")

	for rec, err := range seq {
		require.NoError(t, err)
		assert.Equal(t, "a", rec.Synopsis)
		break
	}

	// the single sqlite connection must have been released by the early break
	_, found, err := l.FindByProductionCode(ctx, "S05E03")
	require.NoError(t, err)
	assert.True(t, found)

	n := 0
	for range l.FindBySeason(ctx, 42) {
		n++
	}
	assert.Zero(t, n)
}

func TestRecent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	for _, text := range []string{"S01E01: a", "S01E02: b", "S01E03: c"} {
		_, err := l.Append(ctx, mustRecord(t, text, "Ed", "1"))
		require.NoError(t, err)
	}

	recs, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c", recs[0].Synopsis)
	assert.Equal(t, "b", recs[1].Synopsis)
}

func TestClosedStoreReturnsPersistenceError(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.DB().Close())
	ctx := context.Background()

	_, err := l.Append(ctx, mustRecord(t, "S01E01: a", "Ed", "1"))
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "append", pe.Op)
	assert.True(t, Transient(err))

	var seqErr error
	for _, err := range l.FindBySeason(ctx, 1) {
		seqErr = err
	}
	require.ErrorAs(t, seqErr, &pe)
	assert.Nil(t, l.AuthFailed())
}

func TestAuthErrorIsSticky(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	rejected := &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}
	first := l.fail("authenticate", rejected)
	var ae *AuthError
	require.ErrorAs(t, first, &ae)

	// the store itself is healthy, yet every call now fails fast
	_, err := l.Append(ctx, mustRecord(t, "S01E01: a", "Ed", "1"))
	assert.Same(t, ae, err)
	_, _, err = l.FindByProductionCode(ctx, "S01E01")
	assert.True(t, IsAuth(err))
	assert.True(t, IsAuth(l.Authenticate(ctx)))
	_, err = l.Recent(ctx, 5)
	assert.True(t, IsAuth(err))
	for _, err := range l.FindBySeason(ctx, 1) {
		assert.True(t, IsAuth(err))
	}

	// a second, different rejection keeps the first error
	again := l.fail("append", &pgconn.PgError{Code: "28000"})
	assert.Same(t, ae, again)
	assert.False(t, Transient(again))
}

func TestRejectLatchesStartupFailure(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.AuthFailed())

	err := l.Reject(errors.New("password authentication failed for user \"recap\""))
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Same(t, ae, l.AuthFailed())

	_, err = l.Append(ctx, mustRecord(t, "S01E01: a", "Ed", "1"))
	assert.Same(t, ae, err)

	// an AuthError passed in is kept as is, and the first one still wins
	assert.Same(t, ae, l.Reject(&AuthError{Err: errors.New("later")}))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify("x", nil))

	err := classify("append", errors.New("disk full"))
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "ledger append: disk full", err.Error())

	err = classify("append", &pgconn.PgError{Code: "28P01"})
	assert.True(t, IsAuth(err))

	assert.True(t, Transient(&pgconn.PgError{Code: "08006"}))
	assert.False(t, Transient(&pgconn.PgError{Code: "23505"}))
	assert.True(t, Transient(errors.New("dial tcp: connection refused")))
	assert.False(t, Transient(nil))
}
