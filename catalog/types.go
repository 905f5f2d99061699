package catalog

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Entity types of the catalog table.
const (
	UserType     = "USER"
	ProductType  = "PRODUCT"
	OrderType    = "ORDER"
	ReviewType   = "REVIEW"
	CategoryType = "CATEGORY"
)

// Type discriminators of entity and relationship rows.
const (
	UserTag     = "User"
	ProductTag  = "Product"
	OrderTag    = "Order"
	ReviewTag   = "Review"
	CategoryTag = "Category"

	OrderCustomerTag   = "OrderCustomer"
	OrderItemTag       = "OrderItem"
	ProductReviewTag   = "ProductReview"
	UserReviewTag      = "UserReview"
	ProductCategoryTag = "ProductCategory"
	CategoryChildTag   = "CategoryChild"
)

type User struct {
	UserID   string `mapstructure:"userId"`
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	UserType string `mapstructure:"userType"` // "customer" or "seller"
}

type Product struct {
	ProductID   string  `mapstructure:"productId"`
	Name        string  `mapstructure:"name"`
	Price       float64 `mapstructure:"price"`
	Description string  `mapstructure:"description"`
	SellerID    string  `mapstructure:"sellerId"`
}

type Order struct {
	OrderID    string  `mapstructure:"orderId"`
	CustomerID string  `mapstructure:"customerId"`
	Total      float64 `mapstructure:"total"`
	Status     string  `mapstructure:"status"`
	OrderDate  string  `mapstructure:"orderDate"`
}

type OrderItem struct {
	OrderID    string  `mapstructure:"orderId"`
	ProductID  string  `mapstructure:"productId"`
	Quantity   int     `mapstructure:"quantity"`
	UnitPrice  float64 `mapstructure:"unitPrice"`
	TotalPrice float64 `mapstructure:"totalPrice"`
}

type Review struct {
	ReviewID   string `mapstructure:"reviewId"`
	CustomerID string `mapstructure:"customerId"`
	ProductID  string `mapstructure:"productId"`
	Rating     int    `mapstructure:"rating"`
	Comment    string `mapstructure:"comment"`
	ReviewDate string `mapstructure:"reviewDate"`
}

type Category struct {
	CategoryID  string `mapstructure:"categoryId"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// ProductDetails is a product with the reviews and categories stored in
// its partition. Reviews and categories carry only what the relationship
// rows project.
type ProductDetails struct {
	Product    Product
	Reviews    []Review
	Categories []Category
}

// OrderDetails is an order with its line items.
type OrderDetails struct {
	Order Order
	Items []OrderItem
}

// ItemsTotal sums the line item totals.
func (d OrderDetails) ItemsTotal() float64 {
	var sum float64
	for _, it := range d.Items {
		sum += it.TotalPrice
	}
	return sum
}

// decode fills out from a row payload. Numbers read back from JSON or
// DynamoDB arrive as float64, so input is weakly typed.
func decode(payload map[string]any, out any) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := d.Decode(payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// encode turns a typed value into a row payload.
func encode(v any) (map[string]any, error) {
	var m map[string]any
	if err := mapstructure.Decode(v, &m); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return m, nil
}
