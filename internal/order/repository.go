package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("order: not found")

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, o *Order) error
	GetByID(ctx context.Context, orderID string) (*Order, error)
	GetStatus(ctx context.Context, orderID string) (Status, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	GetByIDForUpdateTx(ctx context.Context, tx pgx.Tx, orderID string) (*Order, error)
	GetByReferenceForUpdateTx(ctx context.Context, tx pgx.Tx, reference string) (*Order, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, orderID string, status Status, payment PaymentStatus) error
	SetGatewayResultTx(ctx context.Context, tx pgx.Tx, orderID, txnNo, bankCode, respCode string) error
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const orderColumns = `id, reference, user_id, customer_name, customer_email, customer_phone,
	customer_address, payment_method, payment_status, status, total_amount,
	voucher_code, voucher_discount, voucher_type, notes,
	gateway_txn_no, gateway_bank_code, gateway_resp_code, created_at`

func (r *PostgresRepository) CreateTx(ctx context.Context, tx pgx.Tx, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, reference, user_id, customer_name, customer_email, customer_phone,
			customer_address, payment_method, payment_status, status, total_amount,
			voucher_code, voucher_discount, voucher_type, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, o.ID, o.Reference, o.UserID, o.Customer.Name, o.Customer.Email, o.Customer.Phone,
		o.Customer.Address, o.PaymentMethod, o.PaymentStatus, o.Status, o.TotalAmount,
		o.VoucherCode, o.VoucherDiscount, o.VoucherType, o.Notes, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, product_image, price, quantity)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, uuid.NewString(), o.ID, it.ProductID, it.ProductName, it.ProductImage, it.Price, it.Quantity)
		if err != nil {
			return fmt.Errorf("insert order_item: %w", err)
		}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Reference, &o.UserID, &o.Customer.Name, &o.Customer.Email,
		&o.Customer.Phone, &o.Customer.Address, &o.PaymentMethod, &o.PaymentStatus,
		&o.Status, &o.TotalAmount, &o.VoucherCode, &o.VoucherDiscount, &o.VoucherType,
		&o.Notes, &o.GatewayTxnNo, &o.GatewayBankCode, &o.GatewayRespCode, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}

func loadItems(ctx context.Context, q DBPool, o *Order) error {
	rows, err := q.Query(ctx, `
		SELECT product_id, product_name, product_image, price, quantity
		FROM order_items WHERE order_id = $1
	`, o.ID)
	if err != nil {
		return fmt.Errorf("select order_items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.ProductImage, &it.Price, &it.Quantity); err != nil {
			return fmt.Errorf("scan order_item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func (r *PostgresRepository) GetByID(ctx context.Context, orderID string) (*Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, r.pool, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) GetStatus(ctx context.Context, orderID string) (Status, error) {
	var s Status
	err := r.pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("select order status: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	for i := range orders {
		if err := loadItems(ctx, r.pool, &orders[i]); err != nil {
			return nil, err
		}
	}

	return orders, nil
}

// GetByIDForUpdateTx locks the order row for the remainder of the transaction.
func (r *PostgresRepository) GetByIDForUpdateTx(ctx context.Context, tx pgx.Tx, orderID string) (*Order, error) {
	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, tx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// GetByReferenceForUpdateTx locks the order row identified by its gateway
// transaction reference. Concurrent gateway notifications for the same order
// serialize on this lock.
func (r *PostgresRepository) GetByReferenceForUpdateTx(ctx context.Context, tx pgx.Tx, reference string) (*Order, error) {
	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE reference = $1 FOR UPDATE`, reference)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, tx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) UpdateStatusTx(ctx context.Context, tx pgx.Tx, orderID string, status Status, payment PaymentStatus) error {
	ct, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, payment_status = $3 WHERE id = $1`,
		orderID, status, payment)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) SetGatewayResultTx(ctx context.Context, tx pgx.Tx, orderID, txnNo, bankCode, respCode string) error {
	_, err := tx.Exec(ctx, `
		UPDATE orders SET gateway_txn_no = $2, gateway_bank_code = $3, gateway_resp_code = $4
		WHERE id = $1
	`, orderID, txnNo, bankCode, respCode)
	if err != nil {
		return fmt.Errorf("update gateway result: %w", err)
	}
	return nil
}
