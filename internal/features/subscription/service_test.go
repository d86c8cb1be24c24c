package subscription

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kriptosignal.ru/signals-bot/internal/common"
	"kriptosignal.ru/signals-bot/internal/features/payments"
)

// fakeMatcher — платёжный модуль в памяти с честной CAS-семантикой
// погашения счёта.
type fakeMatcher struct {
	mu      sync.Mutex
	intents map[int64]*payments.Purchase // живые счета по user_id
	paid    map[int64]bool               // есть ли перевод на сумму счёта
	nextID  int64
}

func newFakeMatcher() *fakeMatcher {
	return &fakeMatcher{
		intents: make(map[int64]*payments.Purchase),
		paid:    make(map[int64]bool),
	}
}

func (f *fakeMatcher) MintIntent(_ context.Context, userID int64) (*payments.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p := &payments.Purchase{
		ID:           f.nextID,
		UserID:       userID,
		AmountMicros: 50_047_000,
		Status:       payments.StatusPending,
		CreatedAt:    time.Now(),
	}
	f.intents[userID] = p
	return p, nil
}

func (f *fakeMatcher) PendingIntent(_ context.Context, userID int64) (*payments.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.intents[userID]
	if !ok {
		return nil, common.ErrNoPendingIntent
	}
	return p, nil
}

func (f *fakeMatcher) CheckForPayment(_ context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.intents[userID]; !ok {
		return false, common.ErrNoPendingIntent
	}
	return f.paid[userID], nil
}

func (f *fakeMatcher) ConfirmIntent(_ context.Context, userID int64) (*payments.Purchase, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.intents[userID]
	if !ok {
		return nil, false, nil
	}
	delete(f.intents, userID)
	now := time.Now()
	p.Status = payments.StatusConfirmed
	p.ConfirmedAt = &now
	return p, true, nil
}

func (f *fakeMatcher) PendingUserIDs(_ context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.intents))
	for id := range f.intents {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeStore struct {
	mu        sync.Mutex
	subs      map[int64]*Subscription
	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{subs: make(map[int64]*Subscription)}
}

func (f *fakeStore) GetByUserID(_ context.Context, userID int64) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok {
		return nil, common.ErrNoSubscription
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeStore) Upsert(_ context.Context, sub *Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	cp := *sub
	f.subs[sub.UserID] = &cp
	return nil
}

func (f *fakeStore) SetPaid(_ context.Context, userID int64, paid bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[userID]; ok {
		sub.Paid = paid
	}
	return nil
}

func (f *fakeStore) ExpireOverdue(_ context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	now := time.Now()
	for id, sub := range f.subs {
		if sub.Paid && sub.EndDate.Before(now) {
			sub.Paid = false
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) ListAll(_ context.Context) ([]*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var subs []*Subscription
	for _, sub := range f.subs {
		cp := *sub
		subs = append(subs, &cp)
	}
	return subs, nil
}

func (f *fakeStore) ListActive(_ context.Context) ([]*Subscription, error)  { return f.ListAll(nil) }
func (f *fakeStore) ListExpired(_ context.Context) ([]*Subscription, error) { return f.ListAll(nil) }

type fakeSettler struct {
	mu    sync.Mutex
	calls []int64 // purchase_id каждого вызова Settle
	err   error
}

func (f *fakeSettler) Settle(_ context.Context, p *payments.Purchase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p.ID)
	return f.err
}

type fakeGate struct {
	mu       sync.Mutex
	invites  int
	banned   []int64
	unbanned []int64
	linkErr  error
}

func (f *fakeGate) CreateInviteLink(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return "", f.linkErr
	}
	f.invites++
	return "https://t.me/+invite", nil
}

func (f *fakeGate) BanMember(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banned = append(f.banned, userID)
	return nil
}

func (f *fakeGate) UnbanMember(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unbanned = append(f.unbanned, userID)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	users  map[int64][]string
	audits []string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{users: make(map[int64][]string)}
}

func (f *fakeNotifier) NotifyUser(userID int64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID] = append(f.users[userID], text)
}

func (f *fakeNotifier) Audit(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, text)
}

func newTestService() (*Service, *fakeMatcher, *fakeStore, *fakeSettler, *fakeGate, *fakeNotifier) {
	m := newFakeMatcher()
	st := newFakeStore()
	ref := &fakeSettler{}
	gate := &fakeGate{}
	n := newFakeNotifier()
	return NewService(m, st, ref, gate, n, 30), m, st, ref, gate, n
}

func TestCheckPayment_ConfirmsAndInvites(t *testing.T) {
	ctx := context.Background()
	svc, m, st, ref, gate, n := newTestService()

	_, err := svc.StartPurchase(ctx, 100)
	require.NoError(t, err)
	m.paid[100] = true

	before := time.Now()
	res, err := svc.CheckPayment(ctx, 100, false)
	require.NoError(t, err)

	require.True(t, res.Found)
	require.True(t, res.Confirmed)
	assert.Equal(t, "https://t.me/+invite", res.InviteLink)
	assert.False(t, res.InviteFailed)

	sub, err := st.GetByUserID(ctx, 100)
	require.NoError(t, err)
	assert.True(t, sub.Paid)
	assert.Equal(t, int64(50_047_000), sub.TxAmountMicros)
	// Конец периода — 30 дней от момента подтверждения
	assert.WithinDuration(t, before.AddDate(0, 0, 30), sub.EndDate, 5*time.Second)

	assert.Len(t, ref.calls, 1)
	assert.Equal(t, 1, gate.invites)
	require.NotEmpty(t, n.audits)
	assert.Contains(t, n.audits[len(n.audits)-1], "Новая подписка")
}

func TestCheckPayment_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _, ref, gate, _ := newTestService()

	_, err := svc.StartPurchase(ctx, 100)
	require.NoError(t, err)

	res, err := svc.CheckPayment(ctx, 100, false)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, ref.calls)
	assert.Zero(t, gate.invites)
}

func TestCheckPayment_NoIntentIsNotAnError(t *testing.T) {
	svc, _, _, _, _, _ := newTestService()

	res, err := svc.CheckPayment(context.Background(), 100, false)
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestCheckPayment_SecondCallReturnsFalse(t *testing.T) {
	ctx := context.Background()
	svc, m, _, _, _, _ := newTestService()

	_, err := svc.StartPurchase(ctx, 100)
	require.NoError(t, err)
	m.paid[100] = true

	res, err := svc.CheckPayment(ctx, 100, false)
	require.NoError(t, err)
	require.True(t, res.Confirmed)

	// Счёт погашен — повторная проверка сообщает «не найдено»,
	// а не подтверждает ещё раз.
	res, err = svc.CheckPayment(ctx, 100, false)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.False(t, res.Confirmed)
}

func TestCheckPayment_ExactlyOnceUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	svc, m, _, ref, gate, _ := newTestService()

	_, err := svc.StartPurchase(ctx, 100)
	require.NoError(t, err)
	m.paid[100] = true

	const callers = 32
	var wg sync.WaitGroup
	results := make([]*CheckResult, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			res, err := svc.CheckPayment(ctx, 100, false)
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	confirmed := 0
	for _, res := range results {
		if res.Confirmed {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed, "счёт должен быть подтверждён ровно одним вызовом")
	assert.Len(t, ref.calls, 1, "рефералка начисляется один раз")
	assert.Equal(t, 1, gate.invites, "ссылка создаётся одна")
}

func TestCheckPayment_InviteFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	svc, m, st, _, gate, n := newTestService()
	gate.linkErr = errors.New("telegram недоступен")

	_, err := svc.StartPurchase(ctx, 100)
	require.NoError(t, err)
	m.paid[100] = true

	res, err := svc.CheckPayment(ctx, 100, false)
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.True(t, res.InviteFailed)

	// Подписка записана, оплата не потеряна
	sub, err := st.GetByUserID(ctx, 100)
	require.NoError(t, err)
	assert.True(t, sub.Paid)

	found := false
	for _, a := range n.audits {
		if strings.Contains(a, "Ошибка создания ссылки") {
			found = true
		}
	}
	assert.True(t, found, "операторы должны узнать о сбое выдачи ссылки")
}

func TestCheckPayment_SettleFailureStillGrantsAccess(t *testing.T) {
	ctx := context.Background()
	svc, m, _, ref, gate, _ := newTestService()
	ref.err = errors.New("база недоступна")

	_, err := svc.StartPurchase(ctx, 100)
	require.NoError(t, err)
	m.paid[100] = true

	res, err := svc.CheckPayment(ctx, 100, false)
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.Equal(t, "https://t.me/+invite", res.InviteLink)
	assert.Equal(t, 1, gate.invites)
}

func TestExtend_AddsToFutureEnd(t *testing.T) {
	ctx := context.Background()
	svc, _, st, _, _, _ := newTestService()

	end := time.Now().AddDate(0, 0, 10)
	require.NoError(t, st.Upsert(ctx, &Subscription{
		UserID:    100,
		Paid:      true,
		StartDate: time.Now().AddDate(0, 0, -20),
		EndDate:   end,
	}))

	sub, err := svc.Extend(ctx, 100, 7)
	require.NoError(t, err)
	assert.WithinDuration(t, end.AddDate(0, 0, 7), sub.EndDate, time.Second,
		"продление действующей подписки идёт от её конца, не от сегодня")
}

func TestExtend_ExpiredStartsFromNow(t *testing.T) {
	ctx := context.Background()
	svc, _, st, _, _, _ := newTestService()

	require.NoError(t, st.Upsert(ctx, &Subscription{
		UserID:    100,
		Paid:      false,
		StartDate: time.Now().AddDate(0, 0, -40),
		EndDate:   time.Now().AddDate(0, 0, -10),
	}))

	sub, err := svc.Extend(ctx, 100, 7)
	require.NoError(t, err)
	assert.True(t, sub.Paid)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), sub.EndDate, 5*time.Second)
	assert.WithinDuration(t, time.Now(), sub.StartDate, 5*time.Second)
}

func TestExtend_CreatesMissingSubscription(t *testing.T) {
	ctx := context.Background()
	svc, _, st, _, _, _ := newTestService()

	sub, err := svc.Extend(ctx, 200, 14)
	require.NoError(t, err)
	assert.True(t, sub.Paid)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 14), sub.EndDate, 5*time.Second)

	_, err = st.GetByUserID(ctx, 200)
	assert.NoError(t, err)
}

func TestExpireOverdue_KicksOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, st, _, gate, n := newTestService()

	require.NoError(t, st.Upsert(ctx, &Subscription{
		UserID:    100,
		Paid:      true,
		StartDate: time.Now().AddDate(0, 0, -31),
		EndDate:   time.Now().Add(-time.Hour),
	}))
	require.NoError(t, st.Upsert(ctx, &Subscription{
		UserID:    200,
		Paid:      true,
		StartDate: time.Now(),
		EndDate:   time.Now().AddDate(0, 0, 30),
	}))

	require.NoError(t, svc.ExpireOverdue(ctx))

	// Выгоняем баном и сразу разбаниваем, чтобы новая ссылка работала
	assert.Equal(t, []int64{100}, gate.banned)
	assert.Equal(t, []int64{100}, gate.unbanned)
	assert.Len(t, n.users[100], 1)
	assert.Empty(t, n.users[200])

	// Повторный свип никого не трогает
	require.NoError(t, svc.ExpireOverdue(ctx))
	assert.Len(t, gate.banned, 1)
	assert.Len(t, n.users[100], 1)
}

func TestBanRemovesAccess(t *testing.T) {
	ctx := context.Background()
	svc, _, st, _, gate, _ := newTestService()

	require.NoError(t, st.Upsert(ctx, &Subscription{
		UserID:  100,
		Paid:    true,
		EndDate: time.Now().AddDate(0, 0, 30),
	}))

	require.NoError(t, svc.Ban(ctx, 100))

	sub, err := st.GetByUserID(ctx, 100)
	require.NoError(t, err)
	assert.False(t, sub.Paid)
	assert.Equal(t, []int64{100}, gate.banned)
}

func TestUnbanDoesNotRestoreSubscription(t *testing.T) {
	ctx := context.Background()
	svc, _, st, _, gate, _ := newTestService()

	require.NoError(t, st.Upsert(ctx, &Subscription{UserID: 100, Paid: false}))

	require.NoError(t, svc.Unban(ctx, 100))
	assert.Equal(t, []int64{100}, gate.unbanned)

	sub, err := st.GetByUserID(ctx, 100)
	require.NoError(t, err)
	assert.False(t, sub.Paid, "разбан снимает только бан в канале, подписку не возвращает")
}

func TestPollPending_NotifiesOnlyPaid(t *testing.T) {
	ctx := context.Background()
	svc, m, _, _, _, n := newTestService()

	_, err := svc.StartPurchase(ctx, 100)
	require.NoError(t, err)
	_, err = svc.StartPurchase(ctx, 200)
	require.NoError(t, err)
	m.paid[100] = true

	require.NoError(t, svc.PollPending(ctx))

	require.Len(t, n.users[100], 1)
	assert.Contains(t, n.users[100][0], "найдена автоматически")
	assert.Empty(t, n.users[200])

	// Счёт второго пользователя остался жить
	_, err = svc.PendingIntent(ctx, 200)
	assert.NoError(t, err)
}

func TestExportCSV(t *testing.T) {
	ctx := context.Background()
	svc, _, st, _, _, _ := newTestService()

	txTime := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, st.Upsert(ctx, &Subscription{
		UserID:             100,
		UniqueAmountMicros: 50_047_000,
		Paid:               true,
		StartDate:          txTime,
		EndDate:            txTime.AddDate(0, 0, 30),
		TxAmountMicros:     50_047_000,
		TxTime:             &txTime,
	}))

	data, err := svc.ExportCSV(ctx)
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "user_id,unique_amount,paid,start_date,end_date,tx_amount,tx_time")
	assert.Contains(t, text, "100,50.047,1,2026-03-01 12:30,2026-03-31 12:30,50.047,2026-03-01 12:30")
}
