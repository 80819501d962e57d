package products

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("product not found")
	ErrNameTaken = errors.New("name already exists")
)

type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Qty         int     `json:"qty"`
}

// Fields are the mutable columns of a Product. Lengths follow the column
// widths and are checked only after screening.
type Fields struct {
	Name        string  `json:"name" validate:"max=100"`
	Description string  `json:"description" validate:"max=200"`
	Price       float64 `json:"price"`
	Qty         int     `json:"quantity"`
}

func (f Fields) withID(id int64) Product {
	return Product{ID: id, Name: f.Name, Description: f.Description, Price: f.Price, Qty: f.Qty}
}

// Store owns the products table. Every mutation is committed before it returns.
type Store interface {
	Insert(ctx context.Context, f Fields) (Product, error)
	List(ctx context.Context) ([]Product, error)
	// Get reports ok=false, not an error, when no row has the id.
	Get(ctx context.Context, id int64) (Product, bool, error)
	Update(ctx context.Context, p Product) (Product, error)
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}
