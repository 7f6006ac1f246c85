package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/google/uuid"

	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/port"
)

func newSQLiteAdapter(t *testing.T) *SQLAdapter {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "duka.db") + "?_pragma=busy_timeout(5000)"

	m := &Migrator{Driver: "sqlite", DSN: dsn}
	if err := m.MigrateUp(); err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}

	db, err := Open(context.Background(), "sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLAdapter(db)
}

func getMySQLAdapter(t *testing.T) *SQLAdapter {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set")
	}

	m := &Migrator{Driver: "mysql", DSN: dsn}
	if err := m.MigrateUp(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	db, err := Open(context.Background(), "mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLAdapter(db)
}

func newStock(shopID, name string, count int, at time.Time) domain.Stock {
	return domain.Stock{
		ID:           uuid.NewString(),
		ShopID:       shopID,
		Name:         name,
		Count:        count,
		LastEditedBy: "owner",
		Version:      1,
		CreatedAt:    at,
		EditHistory: []domain.EditHistory{{
			EditedBy:  "owner",
			Changes:   "Created stock",
			Timestamp: at,
		}},
	}
}

func newSale(stock domain.Stock, quantity int, at time.Time) domain.Sale {
	return domain.Sale{
		ID:           uuid.NewString(),
		ShopID:       stock.ShopID,
		StockID:      stock.ID,
		SoldBy:       "ST-1",
		SoldByName:   faker.Name(),
		CustomerName: faker.Name(),
		Quantity:     quantity,
		DateTime:     at,
	}
}

func TestCreateAndGetStock(t *testing.T) {
	adapter := newSQLiteAdapter(t)
	ctx := context.Background()

	now := time.UnixMilli(time.Now().UnixMilli())
	stock := newStock("shop-1", "Sugar", 10, now)
	if err := adapter.CreateStock(ctx, stock); err != nil {
		t.Fatalf("CreateStock failed: %v", err)
	}

	got, err := adapter.GetStock(ctx, "shop-1", stock.ID)
	if err != nil {
		t.Fatalf("GetStock failed: %v", err)
	}
	if got.Name != "Sugar" || got.Count != 10 || got.Version != 1 {
		t.Errorf("unexpected stock: %+v", got)
	}
	if len(got.EditHistory) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(got.EditHistory))
	}
	if !got.EditHistory[0].Timestamp.Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, got.EditHistory[0].Timestamp)
	}
}

func TestGetStock_OtherShopIsNotFound(t *testing.T) {
	adapter := newSQLiteAdapter(t)
	ctx := context.Background()

	stock := newStock("shop-1", "Salt", 3, time.Now())
	if err := adapter.CreateStock(ctx, stock); err != nil {
		t.Fatalf("CreateStock failed: %v", err)
	}

	_, err := adapter.GetStock(ctx, "shop-2", stock.ID)
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got: %v", err)
	}
}

func TestListStocks_InsertionOrder(t *testing.T) {
	adapter := newSQLiteAdapter(t)
	ctx := context.Background()

	base := time.Now()
	names := []string{"Tea", "Bread", "Apples"}
	for i, name := range names {
		s := newStock("shop-1", name, i+1, base.Add(time.Duration(i)*time.Second))
		if err := adapter.CreateStock(ctx, s); err != nil {
			t.Fatalf("CreateStock failed: %v", err)
		}
	}
	if err := adapter.CreateStock(ctx, newStock("shop-2", "Other", 1, base)); err != nil {
		t.Fatalf("CreateStock failed: %v", err)
	}

	stocks, err := adapter.ListStocks(ctx, "shop-1")
	if err != nil {
		t.Fatalf("ListStocks failed: %v", err)
	}
	if len(stocks) != len(names) {
		t.Fatalf("expected %d stocks, got %d", len(names), len(stocks))
	}
	for i, s := range stocks {
		if s.Name != names[i] {
			t.Errorf("position %d: expected %s, got %s", i, names[i], s.Name)
		}
		if len(s.EditHistory) != 1 {
			t.Errorf("%s: expected 1 edit, got %d", s.Name, len(s.EditHistory))
		}
	}
}

func TestUpdateStock_OptimisticLock(t *testing.T) {
	adapter := newSQLiteAdapter(t)
	ctx := context.Background()

	stock := newStock("shop-1", "Rice", 5, time.Now())
	if err := adapter.CreateStock(ctx, stock); err != nil {
		t.Fatalf("CreateStock failed: %v", err)
	}

	// Update with correct version
	first := stock
	first.Count = 3
	updated, err := adapter.UpdateStock(ctx, first, 1, domain.EditHistory{
		EditedBy: "alice", Changes: "Count: 5 → 3", Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("UpdateStock failed: %v", err)
	}
	if updated.Version != 2 || updated.Count != 3 {
		t.Errorf("expected version 2 count 3, got version %d count %d", updated.Version, updated.Count)
	}

	// Try update with stale version
	second := stock
	second.Name = "Brown Rice"
	_, err = adapter.UpdateStock(ctx, second, 1, domain.EditHistory{
		EditedBy: "bob", Changes: "Name: 'Rice' → 'Brown Rice'", Timestamp: time.Now(),
	})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got: %v", err)
	}

	got, _ := adapter.GetStock(ctx, "shop-1", stock.ID)
	if got.Name != "Rice" || got.Count != 3 {
		t.Errorf("stale write leaked: %+v", got)
	}
	if len(got.EditHistory) != 2 || got.EditHistory[1].EditedBy != "alice" {
		t.Errorf("expected creation + alice entries, got %+v", got.EditHistory)
	}
}

func TestUpdateStock_NotFound(t *testing.T) {
	adapter := newSQLiteAdapter(t)

	stock := newStock("shop-1", "Ghost", 1, time.Now())
	_, err := adapter.UpdateStock(context.Background(), stock, 1, domain.EditHistory{EditedBy: "x"})
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got: %v", err)
	}
}

func TestDeleteStock_KeepsSales(t *testing.T) {
	adapter := newSQLiteAdapter(t)
	ctx := context.Background()

	stock := newStock("shop-1", "Milk", 10, time.Now())
	if err := adapter.CreateStock(ctx, stock); err != nil {
		t.Fatalf("CreateStock failed: %v", err)
	}
	if _, err := adapter.CommitSale(ctx, newSale(stock, 2, time.Now()), "staff"); err != nil {
		t.Fatalf("CommitSale failed: %v", err)
	}

	if err := adapter.DeleteStock(ctx, "shop-1", stock.ID); err != nil {
		t.Fatalf("DeleteStock failed: %v", err)
	}

	var nf *domain.NotFoundError
	if _, err := adapter.GetStock(ctx, "shop-1", stock.ID); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError after delete, got: %v", err)
	}
	if err := adapter.DeleteStock(ctx, "shop-1", stock.ID); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError on second delete, got: %v", err)
	}

	sales, err := adapter.ListSales(ctx, "shop-1")
	if err != nil {
		t.Fatalf("ListSales failed: %v", err)
	}
	if len(sales) != 1 || sales[0].StockID != stock.ID {
		t.Errorf("expected dangling sale to survive, got %+v", sales)
	}
}

func TestCommitSale_Success(t *testing.T) {
	adapter := newSQLiteAdapter(t)
	ctx := context.Background()

	stock := newStock("shop-1", "Soap", 10, time.Now())
	if err := adapter.CreateStock(ctx, stock); err != nil {
		t.Fatalf("CreateStock failed: %v", err)
	}

	sale := newSale(stock, 4, time.Now())
	updated, err := adapter.CommitSale(ctx, sale, "Jane")
	if err != nil {
		t.Fatalf("CommitSale failed: %v", err)
	}
	if updated.Count != 6 {
		t.Errorf("expected count 6, got %d", updated.Count)
	}
	if updated.LastEditedBy != "Jane" {
		t.Errorf("expected last_edited_by Jane, got %s", updated.LastEditedBy)
	}
	if len(updated.EditHistory) != 1 {
		t.Errorf("sales must not append edit history, got %d entries", len(updated.EditHistory))
	}

	sales, _ := adapter.ListSalesByStock(ctx, "shop-1", stock.ID)
	if len(sales) != 1 || sales[0].Quantity != 4 || sales[0].ID != sale.ID {
		t.Errorf("expected the committed sale, got %+v", sales)
	}
}

func TestCommitSale_InsufficientStock(t *testing.T) {
	adapter := newSQLiteAdapter(t)
	ctx := context.Background()

	stock := newStock("shop-1", "Oil", 10, time.Now())
	if err := adapter.CreateStock(ctx, stock); err != nil {
		t.Fatalf("CreateStock failed: %v", err)
	}

	_, err := adapter.CommitSale(ctx, newSale(stock, 11, time.Now()), "Jane")
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}

	got, _ := adapter.GetStock(ctx, "shop-1", stock.ID)
	if got.Count != 10 {
		t.Errorf("expected count 10, got %d", got.Count)
	}
	sales, _ := adapter.ListSales(ctx, "shop-1")
	if len(sales) != 0 {
		t.Errorf("expected no sales, got %d", len(sales))
	}
}

func TestCommitSale_AtomicOnInsertFailure(t *testing.T) {
	adapter := newSQLiteAdapter(t)
	ctx := context.Background()

	stock := newStock("shop-1", "Flour", 10, time.Now())
	if err := adapter.CreateStock(ctx, stock); err != nil {
		t.Fatalf("CreateStock failed: %v", err)
	}

	sale := newSale(stock, 1, time.Now())
	if _, err := adapter.CommitSale(ctx, sale, "Jane"); err != nil {
		t.Fatalf("CommitSale failed: %v", err)
	}

	// Reusing the sale id makes the insert fail after the decrement ran
	_, err := adapter.CommitSale(ctx, sale, "Jane")
	if !errors.Is(err, port.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got: %v", err)
	}

	got, _ := adapter.GetStock(ctx, "shop-1", stock.ID)
	if got.Count != 9 {
		t.Errorf("expected count 9 after rollback, got %d", got.Count)
	}
}

func TestCommitSale_UnknownStock(t *testing.T) {
	adapter := newSQLiteAdapter(t)

	_, err := adapter.CommitSale(context.Background(), newSale(newStock("shop-1", "x", 1, time.Now()), 1, time.Now()), "Jane")
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got: %v", err)
	}
}

func TestListSales_NewestFirst(t *testing.T) {
	adapter := newSQLiteAdapter(t)
	ctx := context.Background()

	stock := newStock("shop-1", "Beans", 100, time.Now())
	if err := adapter.CreateStock(ctx, stock); err != nil {
		t.Fatalf("CreateStock failed: %v", err)
	}

	base := time.Now()
	offsets := []time.Duration{time.Minute, 3 * time.Minute, 2 * time.Minute}
	for _, off := range offsets {
		if _, err := adapter.CommitSale(ctx, newSale(stock, 1, base.Add(off)), "Jane"); err != nil {
			t.Fatalf("CommitSale failed: %v", err)
		}
	}

	sales, err := adapter.ListSales(ctx, "shop-1")
	if err != nil {
		t.Fatalf("ListSales failed: %v", err)
	}
	for i := 1; i < len(sales); i++ {
		if sales[i].DateTime.After(sales[i-1].DateTime) {
			t.Errorf("sales not sorted newest first: %v before %v", sales[i-1].DateTime, sales[i].DateTime)
		}
	}
}

func TestShops(t *testing.T) {
	adapter := newSQLiteAdapter(t)
	ctx := context.Background()

	owner := domain.Owner{ID: uuid.NewString(), Email: faker.Email(), PasswordHash: "hash", Name: faker.Name(), CreatedAt: time.Now()}
	shop := domain.Shop{ID: uuid.NewString(), OwnerID: owner.ID, Name: "Duka", Code: "ABC123", MobileNumber: "+255700000000", CreatedAt: time.Now()}
	if err := adapter.CreateShop(ctx, owner, shop); err != nil {
		t.Fatalf("CreateShop failed: %v", err)
	}

	byCode, err := adapter.GetShopByCode(ctx, "ABC123")
	if err != nil || byCode.ID != shop.ID {
		t.Fatalf("GetShopByCode: %v %+v", err, byCode)
	}
	byOwner, err := adapter.GetShopByOwner(ctx, owner.ID)
	if err != nil || byOwner.MobileNumber != shop.MobileNumber {
		t.Fatalf("GetShopByOwner: %v %+v", err, byOwner)
	}
	gotOwner, err := adapter.GetOwnerByEmail(ctx, owner.Email)
	if err != nil || gotOwner.PasswordHash != "hash" {
		t.Fatalf("GetOwnerByEmail: %v %+v", err, gotOwner)
	}

	dup := domain.Owner{ID: uuid.NewString(), Email: owner.Email, Name: "dup", CreatedAt: time.Now()}
	dupShop := domain.Shop{ID: uuid.NewString(), OwnerID: dup.ID, Code: "XYZ789", CreatedAt: time.Now()}
	if err := adapter.CreateShop(ctx, dup, dupShop); !errors.Is(err, port.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for reused email, got: %v", err)
	}
	if _, err := adapter.GetShopByCode(ctx, "XYZ789"); err == nil {
		t.Error("expected rolled back shop to be absent")
	}
}

func TestStaff(t *testing.T) {
	adapter := newSQLiteAdapter(t)
	ctx := context.Background()

	staff := domain.Staff{ID: "ST-AB12", ShopID: "shop-1", Name: faker.Name(), ActiveStatus: true, CreatedAt: time.Now()}
	if err := adapter.CreateStaff(ctx, staff); err != nil {
		t.Fatalf("CreateStaff failed: %v", err)
	}

	got, err := adapter.GetStaff(ctx, "shop-1", "ST-AB12")
	if err != nil {
		t.Fatalf("GetStaff failed: %v", err)
	}
	if !got.ActiveStatus || !got.LastLogin.IsZero() {
		t.Errorf("unexpected staff: %+v", got)
	}

	// Setting the same value twice is not an error
	for i := 0; i < 2; i++ {
		if err := adapter.SetStaffActive(ctx, "shop-1", "ST-AB12", false); err != nil {
			t.Fatalf("SetStaffActive failed: %v", err)
		}
	}

	login := time.UnixMilli(time.Now().UnixMilli())
	if err := adapter.TouchLastLogin(ctx, "shop-1", "ST-AB12", login); err != nil {
		t.Fatalf("TouchLastLogin failed: %v", err)
	}

	list, err := adapter.ListStaff(ctx, "shop-1")
	if err != nil {
		t.Fatalf("ListStaff failed: %v", err)
	}
	if len(list) != 1 || list[0].ActiveStatus || !list[0].LastLogin.Equal(login) {
		t.Errorf("unexpected staff list: %+v", list)
	}

	var nf *domain.NotFoundError
	if err := adapter.SetStaffActive(ctx, "shop-1", "missing", true); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got: %v", err)
	}
}

func TestMigrator_Version(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "v.db")
	m := &Migrator{Driver: "sqlite", DSN: dsn}

	if err := m.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if version != 4 || dirty {
		t.Errorf("expected clean version 4, got %d dirty=%v", version, dirty)
	}

	if err := m.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
}

func TestMySQLCommitSale(t *testing.T) {
	adapter := getMySQLAdapter(t)
	ctx := context.Background()

	stock := newStock("mysql-test-shop", "test-item", 10, time.Now())
	if err := adapter.CreateStock(ctx, stock); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer adapter.DeleteStock(ctx, stock.ShopID, stock.ID)

	updated, err := adapter.CommitSale(ctx, newSale(stock, 1, time.Now()), "mysql-test")
	if err != nil {
		t.Fatalf("CommitSale failed: %v", err)
	}
	if updated.Count != 9 {
		t.Errorf("expected stock 9, got %d", updated.Count)
	}
}
