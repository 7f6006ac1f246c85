package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/port"
)

// SQLAdapter implements port.Repository on MySQL or SQLite. Queries stick to
// the dialect both engines share: `?` placeholders, no locking reads, and
// conditional UPDATEs for every compare-and-swap.
type SQLAdapter struct {
	db *sqlx.DB
}

var _ port.Repository = (*SQLAdapter)(nil)

func NewSQLAdapter(db *sqlx.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

// Open connects to the database and applies pool settings for the driver.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	switch driver {
	case "sqlite":
		// one writer; transactions never reach back into the pool
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

type stockRow struct {
	ID           string `db:"stock_id"`
	ShopID       string `db:"shop_id"`
	Name         string `db:"name"`
	Count        int    `db:"count_on_hand"`
	LastEditedBy string `db:"last_edited_by"`
	Version      int    `db:"version"`
	CreatedAt    int64  `db:"created_at"`
}

type editRow struct {
	StockID  string `db:"stock_id"`
	Seq      int    `db:"seq"`
	EditedBy string `db:"edited_by"`
	Changes  string `db:"changes"`
	EditedAt int64  `db:"edited_at"`
}

type saleRow struct {
	ID           string `db:"sale_id"`
	ShopID       string `db:"shop_id"`
	StockID      string `db:"stock_id"`
	SoldBy       string `db:"sold_by"`
	SoldByName   string `db:"sold_by_name"`
	CustomerName string `db:"customer_name"`
	Quantity     int    `db:"quantity"`
	SoldAt       int64  `db:"sold_at"`
}

type ownerRow struct {
	ID           string `db:"owner_id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Name         string `db:"name"`
	CreatedAt    int64  `db:"created_at"`
}

type shopRow struct {
	ID           string `db:"shop_id"`
	OwnerID      string `db:"owner_id"`
	Name         string `db:"name"`
	Code         string `db:"shop_code"`
	MobileNumber string `db:"mobile_number"`
	CreatedAt    int64  `db:"created_at"`
}

type staffRow struct {
	ID           string `db:"staff_id"`
	ShopID       string `db:"shop_id"`
	Name         string `db:"name"`
	ActiveStatus bool   `db:"active_status"`
	LastLogin    int64  `db:"last_login"`
	CreatedAt    int64  `db:"created_at"`
}

const (
	stockColumns = `stock_id, shop_id, name, count_on_hand, last_edited_by, version, created_at`
	saleColumns  = `sale_id, shop_id, stock_id, sold_by, sold_by_name, customer_name, quantity, sold_at`
	shopColumns  = `shop_id, owner_id, name, shop_code, mobile_number, created_at`
	staffColumns = `staff_id, shop_id, name, active_status, last_login, created_at`
)

// ── stocks ───────────────────────────────────────────────────────────────────

func (a *SQLAdapter) CreateStock(ctx context.Context, stock domain.Stock) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stocks (`+stockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		stock.ID, stock.ShopID, stock.Name, stock.Count, stock.LastEditedBy,
		stock.Version, toMillis(stock.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert stock: %w", wrapDuplicate(err))
	}

	for i, e := range stock.EditHistory {
		if err := insertEdit(ctx, tx, stock.ID, i+1, e); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (a *SQLAdapter) GetStock(ctx context.Context, shopID, stockID string) (*domain.Stock, error) {
	return getStock(ctx, a.db, shopID, stockID)
}

func (a *SQLAdapter) ListStocks(ctx context.Context, shopID string) ([]domain.Stock, error) {
	var rows []stockRow
	err := a.db.SelectContext(ctx, &rows, `
		SELECT `+stockColumns+` FROM stocks
		WHERE shop_id = ? ORDER BY created_at, stock_id`, shopID)
	if err != nil {
		return nil, fmt.Errorf("query stocks: %w", err)
	}

	var edits []editRow
	err = a.db.SelectContext(ctx, &edits, `
		SELECT e.stock_id, e.seq, e.edited_by, e.changes, e.edited_at
		FROM stock_edits e JOIN stocks s ON s.stock_id = e.stock_id
		WHERE s.shop_id = ? ORDER BY e.stock_id, e.seq`, shopID)
	if err != nil {
		return nil, fmt.Errorf("query stock edits: %w", err)
	}

	byStock := make(map[string][]domain.EditHistory, len(rows))
	for _, e := range edits {
		byStock[e.StockID] = append(byStock[e.StockID], e.toDomain())
	}

	stocks := make([]domain.Stock, 0, len(rows))
	for _, r := range rows {
		s := r.toDomain()
		s.EditHistory = byStock[r.ID]
		stocks = append(stocks, s)
	}
	return stocks, nil
}

func (a *SQLAdapter) UpdateStock(ctx context.Context, stock domain.Stock, expectedVersion int, edit domain.EditHistory) (*domain.Stock, error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE stocks
		SET name = ?, count_on_hand = ?, last_edited_by = ?, version = version + 1
		WHERE stock_id = ? AND shop_id = ? AND version = ?`,
		stock.Name, stock.Count, stock.LastEditedBy,
		stock.ID, stock.ShopID, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		exists, err := stockExists(ctx, tx, stock.ShopID, stock.ID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, &domain.NotFoundError{Entity: "stock", ID: stock.ID}
		}
		return nil, &domain.ConflictError{Entity: "stock", ID: stock.ID}
	}

	if err := insertEdit(ctx, tx, stock.ID, expectedVersion+1, edit); err != nil {
		return nil, err
	}

	updated, err := getStock(ctx, tx, stock.ShopID, stock.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func (a *SQLAdapter) DeleteStock(ctx context.Context, shopID, stockID string) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM stocks WHERE stock_id = ? AND shop_id = ?`, stockID, shopID)
	if err != nil {
		return fmt.Errorf("delete stock: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &domain.NotFoundError{Entity: "stock", ID: stockID}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM stock_edits WHERE stock_id = ?`, stockID); err != nil {
		return fmt.Errorf("delete stock edits: %w", err)
	}

	return tx.Commit()
}

// ── sales ────────────────────────────────────────────────────────────────────

func (a *SQLAdapter) CommitSale(ctx context.Context, sale domain.Sale, sellerName string) (*domain.Stock, error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE stocks
		SET count_on_hand = count_on_hand - ?, last_edited_by = ?, version = version + 1
		WHERE stock_id = ? AND shop_id = ? AND count_on_hand >= ?`,
		sale.Quantity, sellerName, sale.StockID, sale.ShopID, sale.Quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("update stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		exists, err := stockExists(ctx, tx, sale.ShopID, sale.StockID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, &domain.NotFoundError{Entity: "stock", ID: sale.StockID}
		}
		return nil, domain.ErrInsufficientStock
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.ShopID, sale.StockID, sale.SoldBy, sale.SoldByName,
		sale.CustomerName, sale.Quantity, toMillis(sale.DateTime),
	)
	if err != nil {
		return nil, fmt.Errorf("insert sale: %w", wrapDuplicate(err))
	}

	stock, err := getStock(ctx, tx, sale.ShopID, sale.StockID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stock, nil
}

func (a *SQLAdapter) ListSales(ctx context.Context, shopID string) ([]domain.Sale, error) {
	var rows []saleRow
	err := a.db.SelectContext(ctx, &rows, `
		SELECT `+saleColumns+` FROM sales
		WHERE shop_id = ? ORDER BY sold_at DESC, sale_id`, shopID)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	return salesToDomain(rows), nil
}

func (a *SQLAdapter) ListSalesByStock(ctx context.Context, shopID, stockID string) ([]domain.Sale, error) {
	var rows []saleRow
	err := a.db.SelectContext(ctx, &rows, `
		SELECT `+saleColumns+` FROM sales
		WHERE shop_id = ? AND stock_id = ? ORDER BY sold_at DESC, sale_id`, shopID, stockID)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	return salesToDomain(rows), nil
}

// ── shops ────────────────────────────────────────────────────────────────────

func (a *SQLAdapter) CreateShop(ctx context.Context, owner domain.Owner, shop domain.Shop) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO owners (owner_id, email, password_hash, name, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		owner.ID, owner.Email, owner.PasswordHash, owner.Name, toMillis(owner.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert owner: %w", wrapDuplicate(err))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shops (`+shopColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		shop.ID, shop.OwnerID, shop.Name, shop.Code, shop.MobileNumber, toMillis(shop.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert shop: %w", wrapDuplicate(err))
	}

	return tx.Commit()
}

func (a *SQLAdapter) GetShop(ctx context.Context, shopID string) (*domain.Shop, error) {
	return a.getShop(ctx, `shop_id = ?`, shopID)
}

func (a *SQLAdapter) GetShopByCode(ctx context.Context, code string) (*domain.Shop, error) {
	return a.getShop(ctx, `shop_code = ?`, code)
}

func (a *SQLAdapter) GetShopByOwner(ctx context.Context, ownerID string) (*domain.Shop, error) {
	return a.getShop(ctx, `owner_id = ?`, ownerID)
}

func (a *SQLAdapter) getShop(ctx context.Context, where, arg string) (*domain.Shop, error) {
	var row shopRow
	err := a.db.GetContext(ctx, &row, `SELECT `+shopColumns+` FROM shops WHERE `+where+` LIMIT 1`, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "shop", ID: arg}
	}
	if err != nil {
		return nil, fmt.Errorf("query shop: %w", err)
	}
	return &domain.Shop{
		ID:           row.ID,
		OwnerID:      row.OwnerID,
		Name:         row.Name,
		Code:         row.Code,
		MobileNumber: row.MobileNumber,
		CreatedAt:    fromMillis(row.CreatedAt),
	}, nil
}

func (a *SQLAdapter) GetOwnerByEmail(ctx context.Context, email string) (*domain.Owner, error) {
	var row ownerRow
	err := a.db.GetContext(ctx, &row, `
		SELECT owner_id, email, password_hash, name, created_at
		FROM owners WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "owner", ID: email}
	}
	if err != nil {
		return nil, fmt.Errorf("query owner: %w", err)
	}
	return &domain.Owner{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Name:         row.Name,
		CreatedAt:    fromMillis(row.CreatedAt),
	}, nil
}

// ── staff ────────────────────────────────────────────────────────────────────

func (a *SQLAdapter) CreateStaff(ctx context.Context, staff domain.Staff) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO staff (`+staffColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		staff.ID, staff.ShopID, staff.Name, staff.ActiveStatus,
		toMillis(staff.LastLogin), toMillis(staff.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert staff: %w", wrapDuplicate(err))
	}
	return nil
}

func (a *SQLAdapter) GetStaff(ctx context.Context, shopID, staffID string) (*domain.Staff, error) {
	var row staffRow
	err := a.db.GetContext(ctx, &row, `
		SELECT `+staffColumns+` FROM staff WHERE shop_id = ? AND staff_id = ?`, shopID, staffID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "staff", ID: staffID}
	}
	if err != nil {
		return nil, fmt.Errorf("query staff: %w", err)
	}
	s := row.toDomain()
	return &s, nil
}

func (a *SQLAdapter) ListStaff(ctx context.Context, shopID string) ([]domain.Staff, error) {
	var rows []staffRow
	err := a.db.SelectContext(ctx, &rows, `
		SELECT `+staffColumns+` FROM staff WHERE shop_id = ? ORDER BY created_at, staff_id`, shopID)
	if err != nil {
		return nil, fmt.Errorf("query staff: %w", err)
	}
	staff := make([]domain.Staff, 0, len(rows))
	for _, r := range rows {
		staff = append(staff, r.toDomain())
	}
	return staff, nil
}

func (a *SQLAdapter) SetStaffActive(ctx context.Context, shopID, staffID string, active bool) error {
	return a.updateStaff(ctx, `active_status = ?`, active, shopID, staffID)
}

func (a *SQLAdapter) TouchLastLogin(ctx context.Context, shopID, staffID string, at time.Time) error {
	return a.updateStaff(ctx, `last_login = ?`, toMillis(at), shopID, staffID)
}

func (a *SQLAdapter) updateStaff(ctx context.Context, set string, value any, shopID, staffID string) error {
	result, err := a.db.ExecContext(ctx, `UPDATE staff SET `+set+` WHERE shop_id = ? AND staff_id = ?`,
		value, shopID, staffID)
	if err != nil {
		return fmt.Errorf("update staff: %w", err)
	}
	// MySQL reports zero affected rows when the value is unchanged
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}
	var n int
	if err := a.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM staff WHERE shop_id = ? AND staff_id = ?`, shopID, staffID); err != nil {
		return fmt.Errorf("query staff: %w", err)
	}
	if n == 0 {
		return &domain.NotFoundError{Entity: "staff", ID: staffID}
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func getStock(ctx context.Context, q sqlx.QueryerContext, shopID, stockID string) (*domain.Stock, error) {
	var row stockRow
	err := sqlx.GetContext(ctx, q, &row, `
		SELECT `+stockColumns+` FROM stocks WHERE stock_id = ? AND shop_id = ?`, stockID, shopID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "stock", ID: stockID}
	}
	if err != nil {
		return nil, fmt.Errorf("query stock: %w", err)
	}

	var edits []editRow
	err = sqlx.SelectContext(ctx, q, &edits, `
		SELECT stock_id, seq, edited_by, changes, edited_at
		FROM stock_edits WHERE stock_id = ? ORDER BY seq`, stockID)
	if err != nil {
		return nil, fmt.Errorf("query stock edits: %w", err)
	}

	s := row.toDomain()
	for _, e := range edits {
		s.EditHistory = append(s.EditHistory, e.toDomain())
	}
	return &s, nil
}

func stockExists(ctx context.Context, q sqlx.QueryerContext, shopID, stockID string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, `SELECT COUNT(*) FROM stocks WHERE stock_id = ? AND shop_id = ?`, stockID, shopID)
	if err != nil {
		return false, fmt.Errorf("query stock: %w", err)
	}
	return n > 0, nil
}

func insertEdit(ctx context.Context, tx *sqlx.Tx, stockID string, seq int, e domain.EditHistory) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_edits (stock_id, seq, edited_by, changes, edited_at)
		VALUES (?, ?, ?, ?, ?)`,
		stockID, seq, e.EditedBy, e.Changes, toMillis(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert stock edit: %w", wrapDuplicate(err))
	}
	return nil
}

func (r stockRow) toDomain() domain.Stock {
	return domain.Stock{
		ID:           r.ID,
		ShopID:       r.ShopID,
		Name:         r.Name,
		Count:        r.Count,
		LastEditedBy: r.LastEditedBy,
		Version:      r.Version,
		CreatedAt:    fromMillis(r.CreatedAt),
	}
}

func (r editRow) toDomain() domain.EditHistory {
	return domain.EditHistory{
		EditedBy:  r.EditedBy,
		Changes:   r.Changes,
		Timestamp: fromMillis(r.EditedAt),
	}
}

func (r staffRow) toDomain() domain.Staff {
	return domain.Staff{
		ID:           r.ID,
		ShopID:       r.ShopID,
		Name:         r.Name,
		ActiveStatus: r.ActiveStatus,
		LastLogin:    fromMillis(r.LastLogin),
		CreatedAt:    fromMillis(r.CreatedAt),
	}
}

func salesToDomain(rows []saleRow) []domain.Sale {
	sales := make([]domain.Sale, 0, len(rows))
	for _, r := range rows {
		sales = append(sales, domain.Sale{
			ID:           r.ID,
			ShopID:       r.ShopID,
			StockID:      r.StockID,
			SoldBy:       r.SoldBy,
			SoldByName:   r.SoldByName,
			CustomerName: r.CustomerName,
			Quantity:     r.Quantity,
			DateTime:     fromMillis(r.SoldAt),
		})
	}
	return sales
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func wrapDuplicate(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return fmt.Errorf("%w: %s", port.ErrDuplicateKey, myErr.Message)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s", port.ErrDuplicateKey, liteErr.Error())
		}
	}
	return err
}
