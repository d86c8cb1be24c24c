package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kriptosignal.ru/signals-bot/internal/clients/trongrid"
	"kriptosignal.ru/signals-bot/internal/common"
)

// fakeIntentStore повторяет семантику репозитория в памяти:
// один живой счёт на пользователя, подтверждение через CAS под мьютексом.
type fakeIntentStore struct {
	mu      sync.Mutex
	nextID  int64
	pending map[int64]*Purchase // user_id → живой счёт
	log     []*Purchase         // все записи
}

func newFakeIntentStore() *fakeIntentStore {
	return &fakeIntentStore{pending: make(map[int64]*Purchase)}
}

func (f *fakeIntentStore) CreateIntent(ctx context.Context, userID int64, amountMicros int64) (*Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for uid, p := range f.pending {
		if uid != userID && p.AmountMicros == amountMicros {
			return nil, ErrAmountTaken
		}
	}

	if old, ok := f.pending[userID]; ok {
		old.Status = StatusSuperseded
	}

	f.nextID++
	p := &Purchase{
		ID:           f.nextID,
		UserID:       userID,
		AmountMicros: amountMicros,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
	}
	f.pending[userID] = p
	f.log = append(f.log, p)
	return p, nil
}

func (f *fakeIntentStore) GetPendingByUser(ctx context.Context, userID int64) (*Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[userID]
	if !ok {
		return nil, common.ErrNoPendingIntent
	}
	return p, nil
}

func (f *fakeIntentStore) ConfirmPending(ctx context.Context, userID int64) (*Purchase, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[userID]
	if !ok {
		return nil, false, nil
	}
	now := time.Now()
	p.Status = StatusConfirmed
	p.ConfirmedAt = &now
	delete(f.pending, userID)
	return p, true, nil
}

func (f *fakeIntentStore) ListPendingUserIDs(ctx context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for uid := range f.pending {
		ids = append(ids, uid)
	}
	return ids, nil
}

func (f *fakeIntentStore) ListConfirmed(ctx context.Context) ([]*Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Purchase
	for _, p := range f.log {
		if p.Status == StatusConfirmed {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakeFeed отдаёт заготовленные переводы либо ошибку.
type fakeFeed struct {
	transfers []trongrid.Transfer
	err       error
}

func (f *fakeFeed) RecentTransfers(ctx context.Context) ([]trongrid.Transfer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.transfers, nil
}

const basePrice = int64(50_000_000) // 50 USDT

func TestMintIntent(t *testing.T) {
	store := newFakeIntentStore()
	m := NewMatcher(store, &fakeFeed{}, basePrice, 0)
	ctx := context.Background()

	p, err := m.MintIntent(ctx, 100)
	require.NoError(t, err)

	// хвост 0.001..0.999 USDT
	assert.Greater(t, p.AmountMicros, basePrice)
	assert.Less(t, p.AmountMicros, basePrice+common.MicrosPerUSDT)
	assert.Zero(t, p.AmountMicros%1000, "хвост должен быть трёхзначным десятичным")
	assert.Equal(t, StatusPending, p.Status)
}

func TestMintIntent_SupersedesOldIntent(t *testing.T) {
	store := newFakeIntentStore()
	m := NewMatcher(store, &fakeFeed{}, basePrice, 0)
	ctx := context.Background()

	first, err := m.MintIntent(ctx, 100)
	require.NoError(t, err)

	second, err := m.MintIntent(ctx, 100)
	require.NoError(t, err)

	assert.Equal(t, StatusSuperseded, first.Status)

	live, err := store.GetPendingByUser(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, second.ID, live.ID)
}

func TestMintIntent_RerollsOnCollision(t *testing.T) {
	store := newFakeIntentStore()
	m := NewMatcher(store, &fakeFeed{}, basePrice, 0)
	ctx := context.Background()

	// занимаем хвост 047 чужим счётом
	_, err := store.CreateIntent(ctx, 1, basePrice+47_000)
	require.NoError(t, err)

	// матчер сперва выдаёт занятый хвост, потом свободный
	tails := []int64{47, 47, 531}
	m.randTail = func() int64 {
		tail := tails[0]
		if len(tails) > 1 {
			tails = tails[1:]
		}
		return tail
	}

	p, err := m.MintIntent(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, basePrice+531_000, p.AmountMicros)
}

func TestMintIntent_AllTailsTaken(t *testing.T) {
	store := newFakeIntentStore()
	m := NewMatcher(store, &fakeFeed{}, basePrice, 0)
	ctx := context.Background()

	_, err := store.CreateIntent(ctx, 1, basePrice+47_000)
	require.NoError(t, err)

	m.randTail = func() int64 { return 47 }

	_, err = m.MintIntent(ctx, 100)
	assert.ErrorIs(t, err, common.ErrMintCollision)
}

func TestCheckForPayment(t *testing.T) {
	store := newFakeIntentStore()
	feed := &fakeFeed{}
	m := NewMatcher(store, feed, basePrice, 0)
	ctx := context.Background()

	m.randTail = func() int64 { return 47 }
	_, err := m.MintIntent(ctx, 100)
	require.NoError(t, err)

	// перевода ещё нет
	found, err := m.CheckForPayment(ctx, 100)
	require.NoError(t, err)
	assert.False(t, found)

	// пришёл перевод с другой суммой
	feed.transfers = []trongrid.Transfer{{AmountMicros: 50_046_000}}
	found, err = m.CheckForPayment(ctx, 100)
	require.NoError(t, err)
	assert.False(t, found)

	// пришёл перевод ровно 50.047
	feed.transfers = append(feed.transfers, trongrid.Transfer{AmountMicros: 50_047_000})
	found, err = m.CheckForPayment(ctx, 100)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCheckForPayment_Tolerance(t *testing.T) {
	store := newFakeIntentStore()
	feed := &fakeFeed{transfers: []trongrid.Transfer{{AmountMicros: 50_047_001}}}
	m := NewMatcher(store, feed, basePrice, 1)
	ctx := context.Background()

	m.randTail = func() int64 { return 47 }
	_, err := m.MintIntent(ctx, 100)
	require.NoError(t, err)

	found, err := m.CheckForPayment(ctx, 100)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCheckForPayment_FeedErrorIsNotFatal(t *testing.T) {
	store := newFakeIntentStore()
	feed := &fakeFeed{err: errors.New("timeout")}
	m := NewMatcher(store, feed, basePrice, 0)
	ctx := context.Background()

	_, err := m.MintIntent(ctx, 100)
	require.NoError(t, err)

	found, err := m.CheckForPayment(ctx, 100)
	require.NoError(t, err, "ошибка ленты не должна подниматься наверх")
	assert.False(t, found)
}

func TestCheckForPayment_NoIntent(t *testing.T) {
	m := NewMatcher(newFakeIntentStore(), &fakeFeed{}, basePrice, 0)

	_, err := m.CheckForPayment(context.Background(), 100)
	assert.ErrorIs(t, err, common.ErrNoPendingIntent)
}

func TestConfirmIntent_ExactlyOnceUnderConcurrency(t *testing.T) {
	store := newFakeIntentStore()
	m := NewMatcher(store, &fakeFeed{}, basePrice, 0)
	ctx := context.Background()

	_, err := m.MintIntent(ctx, 100)
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	confirmed := make(chan *Purchase, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, ok, err := m.ConfirmIntent(ctx, 100)
			assert.NoError(t, err)
			if ok {
				confirmed <- p
			}
		}()
	}
	wg.Wait()
	close(confirmed)

	var winners []*Purchase
	for p := range confirmed {
		winners = append(winners, p)
	}
	require.Len(t, winners, 1, "счёт должен подтвердиться ровно один раз")
	assert.Equal(t, StatusConfirmed, winners[0].Status)

	// после потребления счёта проверка оплаты сообщает, что счёта нет
	_, err = m.CheckForPayment(ctx, 100)
	assert.ErrorIs(t, err, common.ErrNoPendingIntent)
}
