package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storeclone/internal/commerce"
	"github.com/roach88/storeclone/internal/retry"
	"github.com/roach88/storeclone/internal/status"
	"github.com/roach88/storeclone/internal/store"
)

type httpErr int

func (e httpErr) Error() string   { return fmt.Sprintf("http %d", int(e)) }
func (e httpErr) HTTPStatus() int { return int(e) }

// flakyBackend fails selected UpdateCells calls before delegating. The
// before hooks run once, ahead of the first UpdateCells or MoveRows, and
// stand in for another writer.
type flakyBackend struct {
	Backend

	mu           sync.Mutex
	updateFails  []error
	updateCalls  int
	moveCalls    int
	beforeUpdate func()
	beforeMove   func()
}

func (f *flakyBackend) UpdateCells(ctx context.Context, sheet string, row int, key string, cells map[int]string) error {
	f.mu.Lock()
	f.updateCalls++
	var err error
	if len(f.updateFails) > 0 {
		err, f.updateFails = f.updateFails[0], f.updateFails[1:]
	}
	hook := f.beforeUpdate
	f.beforeUpdate = nil
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook()
	}
	return f.Backend.UpdateCells(ctx, sheet, row, key, cells)
}

func (f *flakyBackend) MoveRows(ctx context.Context, from, to string, rows []int, keys []string) error {
	f.mu.Lock()
	f.moveCalls++
	hook := f.beforeMove
	f.beforeMove = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.Backend.MoveRows(ctx, from, to, rows, keys)
}

func noSleepRetry() *retry.Policy {
	return retry.New(
		retry.WithJitter(func() float64 { return 0 }),
		retry.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
}

func openBackend(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestLedger(t *testing.T, backend Backend, stores ...string) *Ledger {
	t.Helper()
	if len(stores) == 0 {
		stores = []string{"store_de", "store_es"}
	}
	l := New(backend, MustSchema(stores...), WithRetry(noSleepRetry()))
	_, err := l.EnsureHeader(context.Background())
	require.NoError(t, err)
	return l
}

func sold(id, title string, n int) commerce.SoldProduct {
	return commerce.SoldProduct{ProductID: id, Title: title, SalesCount: n}
}

func TestEnsureHeader_CreatesBothSheets(t *testing.T) {
	backend := openBackend(t)
	l := newTestLedger(t, backend)
	ctx := context.Background()

	for _, sheet := range []string{DefaultSheet, DefaultArchiveSheet} {
		header, _, err := backend.ReadAll(ctx, sheet)
		require.NoError(t, err)
		assert.Equal(t, l.Schema().Header(), header)
	}
}

func TestEnsureHeader_RewritesMismatch(t *testing.T) {
	backend := openBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.WriteHeader(ctx, DefaultSheet, []string{"Product ID", "Product Title", "Sales Count", "Status ES", "Cloned GID ES", "Cloned Title ES", "Notes"}))
	require.NoError(t, backend.AppendRows(ctx, DefaultSheet, [][]string{{"1", "Shirt", "3", "CLONED", "gid://shopify/Product/9", "Camisa", "note"}}))

	l := newTestLedger(t, backend, "store_es")

	header, rows, err := backend.ReadAll(ctx, DefaultSheet)
	require.NoError(t, err)
	assert.Equal(t, l.Schema().Header(), header)
	assert.Equal(t, []string{"1", "Shirt", "3", "CLONED", "gid://shopify/Product/9", "Camisa"}, rows[0])
}

func TestAddCandidates_SkipsKnownAndArchived(t *testing.T) {
	backend := openBackend(t)
	l := newTestLedger(t, backend)
	ctx := context.Background()

	require.NoError(t, backend.AppendRows(ctx, DefaultArchiveSheet, [][]string{{"3", "Old", "9"}}))

	added, err := l.AddCandidates(ctx, []commerce.SoldProduct{
		sold("1", "Shirt", 5), sold("2", "Hat", 1), sold("1", "Shirt", 5), sold("3", "Old", 2), sold(" ", "blank", 1),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, added)

	again, err := l.AddCandidates(ctx, []commerce.SoldProduct{sold("2", "Hat", 4)})
	require.NoError(t, err)
	assert.Empty(t, again)

	recs, err := l.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "1", recs[0].ProductID)
	assert.Equal(t, 5, recs[0].SalesCount)
	assert.Equal(t, 2, recs[0].Row)
	assert.Equal(t, status.Pending, recs[0].Store("store_es").Status)
	assert.Equal(t, 3, recs[1].Row)
}

func TestUpdateStore_BatchedAndScoped(t *testing.T) {
	backend := openBackend(t)
	l := newTestLedger(t, backend)
	ctx := context.Background()

	_, err := l.AddCandidates(ctx, []commerce.SoldProduct{sold("1", "Shirt", 5)})
	require.NoError(t, err)

	require.NoError(t, l.UpdateStore(ctx, "1", "store_de", Update{Status: status.Of(status.PhaseCloned), GID: "gid://shopify/Product/77", Title: "Shirt"}))
	require.NoError(t, l.UpdateStore(ctx, "1", "store_es", Update{Status: status.Of(status.PhaseErrorCloning)}))

	rec, err := l.Find(ctx, "1")
	require.NoError(t, err)
	de := rec.Store("store_de")
	assert.Equal(t, status.Of(status.PhaseCloned), de.Status)
	assert.Equal(t, "gid://shopify/Product/77", de.GID)
	assert.Equal(t, "Shirt", de.ClonedTitle)
	assert.Equal(t, "ERROR_CLONING", rec.Store("store_es").RawStatus)

	require.NoError(t, l.UpdateStore(ctx, "1", "store_de", Update{Status: status.Done("DE")}))
	rec, err = l.Find(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Product/77", rec.Store("store_de").GID)
	assert.Equal(t, "DONE_DE", rec.Store("store_de").RawStatus)
}

func TestUpdateStore_Errors(t *testing.T) {
	l := newTestLedger(t, openBackend(t))
	ctx := context.Background()

	err := l.UpdateStore(ctx, "404", "store_es", Update{Status: status.Pending})
	assert.ErrorIs(t, err, ErrNotFound)

	err = l.UpdateStore(ctx, "1", "store_fr", Update{Status: status.Pending})
	assert.ErrorIs(t, err, ErrUnknownStore)
}

func TestUpdateStore_RowShiftedByConcurrentDelete(t *testing.T) {
	sheets := openBackend(t)
	backend := &flakyBackend{Backend: sheets}
	l := newTestLedger(t, backend)
	ctx := context.Background()

	_, err := l.AddCandidates(ctx, []commerce.SoldProduct{sold("1", "A", 3), sold("2", "B", 2), sold("3", "C", 1)})
	require.NoError(t, err)

	// Product 1 is removed after product 2 was located at row 3.
	backend.beforeUpdate = func() {
		require.NoError(t, sheets.DeleteRow(ctx, DefaultSheet, 2, "1"))
	}

	require.NoError(t, l.UpdateStore(ctx, "2", "store_es", Update{Status: status.Of(status.PhaseCloned), GID: "gid://shopify/Product/22", Title: "B"}))
	assert.Equal(t, 2, backend.updateCalls)

	two, err := l.Find(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 2, two.Row)
	assert.Equal(t, status.Of(status.PhaseCloned), two.Store("store_es").Status)
	assert.Equal(t, "gid://shopify/Product/22", two.Store("store_es").GID)

	three, err := l.Find(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, status.Pending, three.Store("store_es").Status)
	assert.Empty(t, three.Store("store_es").GID)
}

func TestUpdateStore_RateLimitRecovered(t *testing.T) {
	backend := &flakyBackend{Backend: openBackend(t), updateFails: []error{httpErr(429), httpErr(429)}}
	l := newTestLedger(t, backend)
	ctx := context.Background()

	_, err := l.AddCandidates(ctx, []commerce.SoldProduct{sold("1", "Shirt", 5)})
	require.NoError(t, err)

	require.NoError(t, l.UpdateStore(ctx, "1", "store_es", Update{Status: status.Of(status.PhaseCloned), GID: "gid://shopify/Product/1"}))
	assert.Equal(t, 3, backend.updateCalls)

	rec, err := l.Find(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, status.Of(status.PhaseCloned), rec.Store("store_es").Status)
}

func TestUpdateStore_ForbiddenSurfacesImmediately(t *testing.T) {
	backend := &flakyBackend{Backend: openBackend(t), updateFails: []error{httpErr(403)}}
	l := newTestLedger(t, backend)
	ctx := context.Background()

	_, err := l.AddCandidates(ctx, []commerce.SoldProduct{sold("1", "Shirt", 5)})
	require.NoError(t, err)

	err = l.UpdateStore(ctx, "1", "store_es", Update{Status: status.Of(status.PhaseCloned)})
	require.Error(t, err)
	assert.Equal(t, 1, backend.updateCalls)

	var he httpErr
	require.True(t, errors.As(err, &he))
	assert.Equal(t, 403, int(he))
}

func TestArchiveIfComplete(t *testing.T) {
	backend := openBackend(t)
	l := newTestLedger(t, backend)
	ctx := context.Background()

	_, err := l.AddCandidates(ctx, []commerce.SoldProduct{sold("1", "Shirt", 5), sold("2", "Hat", 1)})
	require.NoError(t, err)

	require.NoError(t, l.UpdateStore(ctx, "1", "store_de", Update{Status: status.Done("DE")}))
	moved, err := l.ArchiveIfComplete(ctx, "1")
	require.NoError(t, err)
	assert.False(t, moved, "store_es still pending")

	require.NoError(t, l.UpdateStore(ctx, "1", "store_es", Update{Status: status.Of(status.PhaseApproved)}))
	moved, err = l.ArchiveIfComplete(ctx, "1")
	require.NoError(t, err)
	assert.True(t, moved)

	_, err = l.Find(ctx, "1")
	assert.ErrorIs(t, err, ErrNotFound)

	archived, err := l.Archived(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "1", archived[0].ProductID)

	recs, err := l.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0].ProductID)
	assert.Equal(t, 2, recs[0].Row)
}

func TestArchiveCompleted(t *testing.T) {
	backend := openBackend(t)
	l := newTestLedger(t, backend)
	ctx := context.Background()

	_, err := l.AddCandidates(ctx, []commerce.SoldProduct{sold("1", "A", 1), sold("2", "B", 1), sold("3", "C", 1)})
	require.NoError(t, err)

	for _, id := range []string{"1", "3"} {
		require.NoError(t, l.UpdateStore(ctx, id, "store_de", Update{Status: status.Done("DE")}))
		require.NoError(t, l.UpdateStore(ctx, id, "store_es", Update{Status: status.Of(status.PhaseTranslated)}))
	}
	require.NoError(t, l.UpdateStore(ctx, "2", "store_de", Update{Status: status.Done("DE")}))
	require.NoError(t, l.UpdateStore(ctx, "2", "store_es", Update{Status: status.Of(status.PhaseErrorTranslating)}))

	ids, err := l.ArchiveCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, ids)

	recs, err := l.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0].ProductID)

	ids, err = l.ArchiveCompleted(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestArchiveCompleted_RowShiftedByConcurrentDelete(t *testing.T) {
	sheets := openBackend(t)
	backend := &flakyBackend{Backend: sheets}
	l := newTestLedger(t, backend)
	ctx := context.Background()

	_, err := l.AddCandidates(ctx, []commerce.SoldProduct{sold("1", "A", 1), sold("2", "B", 1), sold("3", "C", 1)})
	require.NoError(t, err)
	for _, id := range []string{"2", "3"} {
		require.NoError(t, l.UpdateStore(ctx, id, "store_de", Update{Status: status.Done("DE")}))
		require.NoError(t, l.UpdateStore(ctx, id, "store_es", Update{Status: status.Done("ES")}))
	}

	backend.beforeMove = func() {
		require.NoError(t, sheets.DeleteRow(ctx, DefaultSheet, 2, "1"))
	}

	ids, err := l.ArchiveCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, ids)
	assert.Equal(t, 2, backend.moveCalls)

	recs, err := l.Records(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	archived, err := l.Archived(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 2)
	assert.Equal(t, "2", archived[0].ProductID)
	assert.Equal(t, "3", archived[1].ProductID)
}

func TestReset(t *testing.T) {
	backend := openBackend(t)
	l := newTestLedger(t, backend)
	ctx := context.Background()

	_, err := l.AddCandidates(ctx, []commerce.SoldProduct{sold("1", "Shirt", 5)})
	require.NoError(t, err)
	require.NoError(t, l.UpdateStore(ctx, "1", "store_es", Update{Status: status.Of(status.PhaseErrorCloneMissing), GID: "gid://shopify/Product/5", Title: "Shirt"}))

	prev, err := l.Reset(ctx, "1", "store_es", true)
	require.NoError(t, err)
	assert.Equal(t, status.Of(status.PhaseErrorCloneMissing), prev)

	rec, err := l.Find(ctx, "1")
	require.NoError(t, err)
	es := rec.Store("store_es")
	assert.Equal(t, status.Pending, es.Status)
	assert.Empty(t, es.GID)
	assert.Empty(t, es.ClonedTitle)

	_, err = l.Reset(ctx, "1", "store_es", false)
	assert.ErrorIs(t, err, ErrNotResettable)

	_, err = l.Reset(ctx, "1", "store_fr", false)
	assert.ErrorIs(t, err, ErrUnknownStore)
}

func TestReset_InvalidStatusCell(t *testing.T) {
	backend := openBackend(t)
	l := newTestLedger(t, backend, "store_es")
	ctx := context.Background()

	require.NoError(t, backend.AppendRows(ctx, DefaultSheet, [][]string{{"1", "Shirt", "1", "PROCESSING"}}))

	rec, err := l.Find(ctx, "1")
	require.NoError(t, err)
	assert.True(t, rec.Store("store_es").Invalid)
	assert.True(t, rec.Store("store_es").Blocking())

	_, err = l.Reset(ctx, "1", "store_es", false)
	require.NoError(t, err)
}

func TestRemove(t *testing.T) {
	l := newTestLedger(t, openBackend(t))
	ctx := context.Background()

	_, err := l.AddCandidates(ctx, []commerce.SoldProduct{sold("1", "A", 1), sold("2", "B", 1)})
	require.NoError(t, err)

	require.NoError(t, l.Remove(ctx, "1"))
	recs, err := l.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0].ProductID)

	assert.ErrorIs(t, l.Remove(ctx, "1"), ErrNotFound)
}
