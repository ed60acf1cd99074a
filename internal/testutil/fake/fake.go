// Package fake provides in-memory stand-ins for the stores, billing
// provider and completer used by unit tests.
package fake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/errmate/errmate/internal/billing"
	"github.com/errmate/errmate/internal/cache"
	"github.com/errmate/errmate/internal/llm"
	"github.com/errmate/errmate/internal/model"
	"github.com/errmate/errmate/internal/repository"
)

// Store is an in-memory stand-in for the Postgres repository. It
// follows the same write rules as the SQL it replaces.
type Store struct {
	mu      sync.Mutex
	seq     int
	subs    map[string]*model.Subscription
	usage   []model.UsageEvent
	queries []*model.QueryResponse

	// Fail, when set, is returned by every call.
	Fail error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{subs: make(map[string]*model.Subscription)}
}

func (m *Store) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%06d", prefix, m.seq)
}

// PutSubscription seeds a subscription row.
func (m *Store) PutSubscription(sub model.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.ID == "" {
		sub.ID = m.nextID("sub")
	}
	m.subs[sub.UserID] = &sub
}

// Subscription returns a copy of the stored row, or nil.
func (m *Store) Subscription(userID string) *model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[userID]
	if !ok {
		return nil
	}
	cp := *sub
	return &cp
}

// AddUsage seeds a usage row dated at.
func (m *Store) AddUsage(userID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, model.UsageEvent{ID: m.nextID("use"), UserID: userID, Date: at})
}

// UsageCount returns the number of usage rows for a user.
func (m *Store) UsageCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.usage {
		if u.UserID == userID {
			n++
		}
	}
	return n
}

// Queries returns the stored query responses for a user, oldest first.
func (m *Store) Queries(userID string) []*model.QueryResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.QueryResponse
	for _, q := range m.queries {
		if q.UserID == userID {
			out = append(out, q)
		}
	}
	return out
}

func (m *Store) GetSubscriptionByUserID(ctx context.Context, userID string) (*model.Subscription, error) {
	if m.Fail != nil {
		return nil, m.Fail
	}
	sub := m.Subscription(userID)
	if sub == nil {
		return nil, repository.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (m *Store) EnsurePendingSubscription(ctx context.Context, userID, customerID string) error {
	if m.Fail != nil {
		return m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if sub, ok := m.subs[userID]; ok {
		sub.StripeCustomerID = customerID
		sub.UpdatedAt = now
		return nil
	}
	m.subs[userID] = &model.Subscription{
		ID:               m.nextID("sub"),
		UserID:           userID,
		StripeCustomerID: customerID,
		Status:           model.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return nil
}

func (m *Store) ApplySubscriptionState(ctx context.Context, u model.SubscriptionUpdate) (bool, error) {
	if m.Fail != nil {
		return false, m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	observed := u.ObservedAt.UTC()
	if u.ObservedAt.IsZero() {
		observed = now
	}

	sub, ok := m.subs[u.UserID]
	if !ok {
		m.subs[u.UserID] = &model.Subscription{
			ID:                   m.nextID("sub"),
			UserID:               u.UserID,
			StripeCustomerID:     u.CustomerID,
			StripeSubscriptionID: u.SubscriptionID,
			Status:               u.Status,
			StatusObservedAt:     &observed,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		return true, nil
	}

	fresh := sub.StatusObservedAt == nil || !sub.StatusObservedAt.After(observed)
	forcedCancel := u.Status == model.StatusCanceled &&
		(sub.StripeSubscriptionID == "" || u.SubscriptionID == "" || sub.StripeSubscriptionID == u.SubscriptionID)
	if !fresh && !forcedCancel {
		return false, nil
	}

	if u.CustomerID != "" {
		sub.StripeCustomerID = u.CustomerID
	}
	if u.SubscriptionID != "" {
		sub.StripeSubscriptionID = u.SubscriptionID
	}
	sub.Status = u.Status
	if fresh {
		sub.StatusObservedAt = &observed
	}
	sub.UpdatedAt = now
	return true, nil
}

func (m *Store) countSince(userID string, since time.Time) int {
	n := 0
	for _, u := range m.usage {
		if u.UserID == userID && !u.Date.Before(since) {
			n++
		}
	}
	return n
}

func (m *Store) CountUsageSince(ctx context.Context, userID string, since time.Time) (int, error) {
	if m.Fail != nil {
		return 0, m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countSince(userID, since), nil
}

func (m *Store) ReserveUsage(ctx context.Context, userID string, since time.Time, limit int, at time.Time) (string, int, error) {
	if m.Fail != nil {
		return "", 0, m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.countSince(userID, since)
	if count >= limit {
		return "", count, repository.ErrUsageLimitExceeded
	}
	id := m.nextID("use")
	m.usage = append(m.usage, model.UsageEvent{ID: id, UserID: userID, Date: at})
	return id, count, nil
}

func (m *Store) RecordUsage(ctx context.Context, userID string, at time.Time) (string, error) {
	if m.Fail != nil {
		return "", m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID("use")
	m.usage = append(m.usage, model.UsageEvent{ID: id, UserID: userID, Date: at})
	return id, nil
}

func (m *Store) ReleaseUsage(ctx context.Context, id string) error {
	if m.Fail != nil {
		return m.Fail
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, u := range m.usage {
		if u.ID == id {
			m.usage = append(m.usage[:i], m.usage[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Store) CreateQueryResponse(ctx context.Context, q *model.QueryResponse) error {
	if m.Fail != nil {
		return m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *q
	m.queries = append(m.queries, &cp)
	return nil
}

func (m *Store) ListQueryResponsesByUser(ctx context.Context, userID string, limit int) ([]*model.QueryResponse, error) {
	if m.Fail != nil {
		return nil, m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.QueryResponse
	for _, q := range m.queries {
		if q.UserID == userID {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Billing is an in-memory billing provider that records calls.
type Billing struct {
	mu            sync.Mutex
	seq           int
	Customers     map[string]*billing.Customer
	Subscriptions map[string]*billing.Subscription
	Sessions      map[string]*billing.CheckoutSession

	// Errors forces a method, keyed by name, to fail.
	Errors map[string]error

	Calls          map[string]int
	CheckoutParams []billing.CheckoutParams
}

// NewBilling creates an empty provider.
func NewBilling() *Billing {
	return &Billing{
		Customers:     make(map[string]*billing.Customer),
		Subscriptions: make(map[string]*billing.Subscription),
		Sessions:      make(map[string]*billing.CheckoutSession),
		Errors:        make(map[string]error),
		Calls:         make(map[string]int),
	}
}

// CallCount returns how many times a method was called.
func (f *Billing) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[method]
}

// TotalCalls returns the number of provider calls of any kind.
func (f *Billing) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		n += c
	}
	return n
}

func (f *Billing) begin(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[method]++
	return f.Errors[method]
}

func (f *Billing) CreateCustomer(ctx context.Context, email, userID string) (*billing.Customer, error) {
	if err := f.begin("CreateCustomer"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	c := &billing.Customer{ID: fmt.Sprintf("cus_%d", f.seq), Email: email, UserID: userID}
	f.Customers[c.ID] = c
	return c, nil
}

func (f *Billing) GetCustomer(ctx context.Context, id string) (*billing.Customer, error) {
	if err := f.begin("GetCustomer"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Customers[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return c, nil
}

func (f *Billing) CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (*billing.CheckoutSession, error) {
	if err := f.begin("CreateCheckoutSession"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.CheckoutParams = append(f.CheckoutParams, p)
	s := &billing.CheckoutSession{
		ID:         fmt.Sprintf("cs_%d", f.seq),
		CustomerID: p.CustomerID,
		Status:     "open",
	}
	s.URL = "https://checkout.stripe.test/" + s.ID
	f.Sessions[s.ID] = s
	return s, nil
}

func (f *Billing) GetCheckoutSession(ctx context.Context, id string) (*billing.CheckoutSession, error) {
	if err := f.begin("GetCheckoutSession"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Sessions[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	cp := *s
	if sub, ok := f.Subscriptions[s.SubscriptionID]; ok {
		subCopy := *sub
		cp.Subscription = &subCopy
	}
	return &cp, nil
}

func (f *Billing) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	if err := f.begin("GetSubscription"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Subscriptions[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *Billing) ListSubscriptions(ctx context.Context, customerID string, limit int) ([]*billing.Subscription, error) {
	if err := f.begin("ListSubscriptions"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*billing.Subscription
	for _, s := range f.Subscriptions {
		if s.CustomerID == customerID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Billing) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	if err := f.begin("CancelAtPeriodEnd"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Subscriptions[subscriptionID]
	if !ok {
		return nil, billing.ErrNotFound
	}
	s.CancelAtPeriodEnd = true
	cp := *s
	return &cp, nil
}

// Completer returns a fixed completion and records prompts.
type Completer struct {
	mu       sync.Mutex
	Content  string
	Err      error
	Requests []llm.Request
	// OnComplete runs before the reply is returned, for example to cancel
	// the caller's context mid-request.
	OnComplete func()
}

func (s *Completer) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if s.OnComplete != nil {
		s.OnComplete()
	}
	if s.Err != nil {
		return "", s.Err
	}
	return s.Content, nil
}

// Calls returns the number of completion requests.
func (s *Completer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// LastPrompt returns the most recent prompt, or "".
func (s *Completer) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Requests) == 0 {
		return ""
	}
	return s.Requests[len(s.Requests)-1].Prompt
}

// Cache implements webhook dedupe and the cancel-at cache in memory.
// TTLs are ignored.
type Cache struct {
	mu       sync.Mutex
	events   map[string]struct{}
	cancelAt map[string]int64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{events: make(map[string]struct{}), cancelAt: make(map[string]int64)}
}

func (c *Cache) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.events[eventID]; ok {
		return false, nil
	}
	c.events[eventID] = struct{}{}
	return true, nil
}

func (c *Cache) ForgetEvent(ctx context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.events, eventID)
	return nil
}

func (c *Cache) GetCancelAt(ctx context.Context, subscriptionID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.cancelAt[subscriptionID]
	if !ok {
		return 0, cache.ErrCacheMiss
	}
	return at, nil
}

func (c *Cache) SetCancelAt(ctx context.Context, subscriptionID string, at int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelAt[subscriptionID] = at
	return nil
}

// ErrBoom is a generic injected failure.
var ErrBoom = errors.New("boom")

// ContainsAll reports whether s contains every sub.
func ContainsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
