package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/port"
)

var errBackendDown = errors.New("backend down")

// Mock Repository
type mockRepo struct {
	mu     sync.Mutex
	stocks []domain.Stock
	sales  []domain.Sale
	owners []domain.Owner
	shops  []domain.Shop
	staff  []domain.Staff

	commitErr error
	updateErr error
	listErr   error
	ownerErr  error
	createErr []error // consumed one per CreateShop/CreateStaff call
}

func newMockRepo() *mockRepo {
	return &mockRepo{}
}

func (m *mockRepo) stockIndex(shopID, stockID string) int {
	return slices.IndexFunc(m.stocks, func(s domain.Stock) bool {
		return s.ID == stockID && s.ShopID == shopID
	})
}

func cloneStock(s domain.Stock) *domain.Stock {
	s.EditHistory = slices.Clone(s.EditHistory)
	return &s
}

func (m *mockRepo) nextCreateErr() error {
	if len(m.createErr) == 0 {
		return nil
	}
	err := m.createErr[0]
	m.createErr = m.createErr[1:]
	return err
}

func (m *mockRepo) CreateStock(ctx context.Context, stock domain.Stock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks = append(m.stocks, *cloneStock(stock))
	return nil
}

func (m *mockRepo) GetStock(ctx context.Context, shopID, stockID string) (*domain.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.stockIndex(shopID, stockID)
	if i < 0 {
		return nil, &domain.NotFoundError{Entity: "stock", ID: stockID}
	}
	return cloneStock(m.stocks[i]), nil
}

func (m *mockRepo) ListStocks(ctx context.Context, shopID string) ([]domain.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Stock
	for _, s := range m.stocks {
		if s.ShopID == shopID {
			out = append(out, *cloneStock(s))
		}
	}
	return out, nil
}

func (m *mockRepo) UpdateStock(ctx context.Context, stock domain.Stock, expectedVersion int, edit domain.EditHistory) (*domain.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	i := m.stockIndex(stock.ShopID, stock.ID)
	if i < 0 {
		return nil, &domain.NotFoundError{Entity: "stock", ID: stock.ID}
	}
	cur := &m.stocks[i]
	if cur.Version != expectedVersion {
		return nil, &domain.ConflictError{Entity: "stock", ID: stock.ID}
	}
	cur.Name = stock.Name
	cur.Count = stock.Count
	cur.LastEditedBy = stock.LastEditedBy
	cur.Version++
	cur.EditHistory = append(cur.EditHistory, edit)
	return cloneStock(*cur), nil
}

func (m *mockRepo) DeleteStock(ctx context.Context, shopID, stockID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.stockIndex(shopID, stockID)
	if i < 0 {
		return &domain.NotFoundError{Entity: "stock", ID: stockID}
	}
	m.stocks = slices.Delete(m.stocks, i, i+1)
	return nil
}

func (m *mockRepo) CommitSale(ctx context.Context, sale domain.Sale, sellerName string) (*domain.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return nil, m.commitErr
	}
	i := m.stockIndex(sale.ShopID, sale.StockID)
	if i < 0 {
		return nil, &domain.NotFoundError{Entity: "stock", ID: sale.StockID}
	}
	cur := &m.stocks[i]
	if cur.Count < sale.Quantity {
		return nil, domain.ErrInsufficientStock
	}
	cur.Count -= sale.Quantity
	cur.LastEditedBy = sellerName
	cur.Version++
	m.sales = append(m.sales, sale)
	return cloneStock(*cur), nil
}

func (m *mockRepo) ListSales(ctx context.Context, shopID string) ([]domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Sale
	for _, s := range m.sales {
		if s.ShopID == shopID {
			out = append(out, s)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Sale) int { return b.DateTime.Compare(a.DateTime) })
	return out, nil
}

func (m *mockRepo) ListSalesByStock(ctx context.Context, shopID, stockID string) ([]domain.Sale, error) {
	all, err := m.ListSales(ctx, shopID)
	if err != nil {
		return nil, err
	}
	var out []domain.Sale
	for _, s := range all {
		if s.StockID == stockID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockRepo) CreateShop(ctx context.Context, owner domain.Owner, shop domain.Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.nextCreateErr(); err != nil {
		return err
	}
	for _, s := range m.shops {
		if s.Code == shop.Code {
			return port.ErrDuplicateKey
		}
	}
	m.owners = append(m.owners, owner)
	m.shops = append(m.shops, shop)
	return nil
}

func (m *mockRepo) findShop(match func(domain.Shop) bool, id string) (*domain.Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.shops {
		if match(s) {
			s := s
			return &s, nil
		}
	}
	return nil, &domain.NotFoundError{Entity: "shop", ID: id}
}

func (m *mockRepo) GetShop(ctx context.Context, shopID string) (*domain.Shop, error) {
	return m.findShop(func(s domain.Shop) bool { return s.ID == shopID }, shopID)
}

func (m *mockRepo) GetShopByCode(ctx context.Context, code string) (*domain.Shop, error) {
	return m.findShop(func(s domain.Shop) bool { return s.Code == code }, code)
}

func (m *mockRepo) GetShopByOwner(ctx context.Context, ownerID string) (*domain.Shop, error) {
	return m.findShop(func(s domain.Shop) bool { return s.OwnerID == ownerID }, ownerID)
}

func (m *mockRepo) GetOwnerByEmail(ctx context.Context, email string) (*domain.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ownerErr != nil {
		return nil, m.ownerErr
	}
	for _, o := range m.owners {
		if o.Email == email {
			o := o
			return &o, nil
		}
	}
	return nil, &domain.NotFoundError{Entity: "owner", ID: email}
}

func (m *mockRepo) CreateStaff(ctx context.Context, staff domain.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.nextCreateErr(); err != nil {
		return err
	}
	m.staff = append(m.staff, staff)
	return nil
}

func (m *mockRepo) staffIndex(shopID, staffID string) int {
	return slices.IndexFunc(m.staff, func(s domain.Staff) bool {
		return s.ID == staffID && s.ShopID == shopID
	})
}

func (m *mockRepo) GetStaff(ctx context.Context, shopID, staffID string) (*domain.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.staffIndex(shopID, staffID)
	if i < 0 {
		return nil, &domain.NotFoundError{Entity: "staff", ID: staffID}
	}
	s := m.staff[i]
	return &s, nil
}

func (m *mockRepo) ListStaff(ctx context.Context, shopID string) ([]domain.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Staff
	for _, s := range m.staff {
		if s.ShopID == shopID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockRepo) SetStaffActive(ctx context.Context, shopID, staffID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.staffIndex(shopID, staffID)
	if i < 0 {
		return &domain.NotFoundError{Entity: "staff", ID: staffID}
	}
	m.staff[i].ActiveStatus = active
	return nil
}

func (m *mockRepo) TouchLastLogin(ctx context.Context, shopID, staffID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.staffIndex(shopID, staffID)
	if i < 0 {
		return &domain.NotFoundError{Entity: "staff", ID: staffID}
	}
	m.staff[i].LastLogin = at
	return nil
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu             sync.Mutex
	idempotencySet map[string]bool
	revoked        map[string]time.Duration
	err            error
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		idempotencySet: make(map[string]bool),
		revoked:        make(map[string]time.Duration),
	}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	return nil
}

func (m *mockCacheRepo) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[tokenID] = ttl
	return nil
}

func (m *mockCacheRepo) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[tokenID]
	return ok, m.err
}

// Mock Notifier
type mockNotifier struct {
	mu   sync.Mutex
	sent []port.Notification
	err  error
}

func (m *mockNotifier) Notify(ctx context.Context, n port.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

// Mock ChangeBus, delivering in process
type mockBus struct {
	mu        sync.Mutex
	published []string
	subs      map[string][]*mockStream
	subErr    error
}

func newMockBus() *mockBus {
	return &mockBus{subs: make(map[string][]*mockStream)}
}

func (b *mockBus) Publish(ctx context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, topic)
	for _, s := range b.subs[topic] {
		s.notify()
	}
	return nil
}

func (b *mockBus) Subscribe(ctx context.Context, topic string) (port.ChangeStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subErr != nil {
		return nil, b.subErr
	}
	s := &mockStream{ch: make(chan struct{}, 1)}
	b.subs[topic] = append(b.subs[topic], s)
	return s, nil
}

func (b *mockBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.published)
}

func (b *mockBus) openStreams(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs[topic] {
		if !s.isClosed() {
			n++
		}
	}
	return n
}

type mockStream struct {
	mu     sync.Mutex
	ch     chan struct{}
	closed bool
}

func (s *mockStream) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *mockStream) Changes() <-chan struct{} { return s.ch }

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func ownerSession(shopID string) domain.Session {
	return domain.Session{ActorID: "owner-1", ActorName: "Olivia", ShopID: shopID, Role: domain.RoleOwner}
}

func staffSession(shopID string) domain.Session {
	return domain.Session{ActorID: "ST-AB12", ActorName: "Sam", ShopID: shopID, Role: domain.RoleStaff}
}

// fixedClock returns a Now func that advances one second per call.
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := t
		t = t.Add(time.Second)
		return now
	}
}
