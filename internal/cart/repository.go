// Package cart reads the ephemeral pre-order cart and clears it when an
// order is created from it. Cart editing lives in the storefront service;
// checkout only consumes the snapshot.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Item joins the cart line with the catalog row so checkout can snapshot
// name, image and price at the instant the order is created.
type Item struct {
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	ProductImage string `json:"productImage"`
	Price        int64  `json:"price"`
	Quantity     int    `json:"quantity"`
}

func (it Item) Subtotal() int64 { return it.Price * int64(it.Quantity) }

type Cart struct {
	ID     string `json:"cartId"`
	UserID string `json:"userId"`
	Items  []Item `json:"items"`
}

func (c *Cart) Subtotal() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.Subtotal()
	}
	return total
}

type Repository interface {
	GetByUserTx(ctx context.Context, tx pgx.Tx, userID string) (*Cart, error)
	ClearTx(ctx context.Context, tx pgx.Tx, userID string) error
}

type PostgresRepository struct{}

func NewPostgresRepository() *PostgresRepository { return &PostgresRepository{} }

// GetByUserTx returns the user's cart, or a cart with no items if none
// exists. The join is total: cart_items carries a foreign key to products.
func (r *PostgresRepository) GetByUserTx(ctx context.Context, tx pgx.Tx, userID string) (*Cart, error) {
	c := &Cart{UserID: userID}

	err := tx.QueryRow(ctx, `SELECT id FROM carts WHERE user_id = $1`, userID).Scan(&c.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, nil
		}
		return nil, fmt.Errorf("select cart: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT ci.product_id, p.name, p.image, p.price, ci.quantity
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
	`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("select cart_items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.ProductImage, &it.Price, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart_item: %w", err)
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return c, nil
}

// ClearTx removes the cart; cart_items cascade.
func (r *PostgresRepository) ClearTx(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := tx.Exec(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
