// Package catalog implements the e-commerce access patterns of a single
// adjacency-list table on top of package query: users, products, orders,
// reviews and categories, and the relationships between them.
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacentio/arbor/query"
)

// DefaultReviewLimit is the page size of ProductReviews when none is given.
const DefaultReviewLimit = 10

// Queries runs the catalog access patterns.
type Queries struct {
	engine *query.Engine
	logger *slog.Logger
}

// NewQueries creates Queries over engine.
func NewQueries(engine *query.Engine, logger *slog.Logger) *Queries {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queries{engine: engine, logger: logger}
}

// UserDetails returns the user with userID.
func (q *Queries) UserDetails(ctx context.Context, userID string) (User, bool, error) {
	row, found, err := q.engine.GetEntity(ctx, UserType, userID)
	if err != nil || !found {
		return User{}, false, err
	}
	var u User
	if err := decode(row.Payload, &u); err != nil {
		return User{}, false, fmt.Errorf("user %q: %w", userID, err)
	}
	return u, true, nil
}

// UserOrders returns the orders placed by userID, read from the projection
// of the OrderCustomer rows. No order entity is fetched.
func (q *Queries) UserOrders(ctx context.Context, userID string) ([]Order, error) {
	rels, err := q.engine.InverseTraverse(ctx, UserType, userID, OrderType, query.TraverseOptions{})
	if err != nil {
		return nil, err
	}
	orders := make([]Order, 0, len(rels))
	for _, rel := range rels {
		var o Order
		if err := decode(rel.Row.Payload, &o); err != nil {
			return nil, fmt.Errorf("order %q: %w", rel.Source.ID, err)
		}
		if o.OrderID == "" {
			o.OrderID = rel.Source.ID
		}
		orders = append(orders, o)
	}
	q.logger.DebugContext(ctx, "user orders", "user", userID, "count", len(orders))
	return orders, nil
}

// ProductWithRelationships reads a product and its review and category
// links in one partition scan. Categories carry only their id; hydrate the
// links with query.Engine.Hydrate for names and descriptions.
func (q *Queries) ProductWithRelationships(ctx context.Context, productID string) (ProductDetails, bool, error) {
	agg, found, err := q.engine.AggregateWithRelationships(ctx, ProductType, productID)
	if err != nil || !found {
		return ProductDetails{}, false, err
	}

	var d ProductDetails
	if err := decode(agg.Entity.Payload, &d.Product); err != nil {
		return ProductDetails{}, false, fmt.Errorf("product %q: %w", productID, err)
	}
	for _, rel := range agg.Of(ProductReviewTag) {
		r, err := reviewLink(rel)
		if err != nil {
			return ProductDetails{}, false, err
		}
		d.Reviews = append(d.Reviews, r)
	}
	for _, rel := range agg.Of(ProductCategoryTag) {
		d.Categories = append(d.Categories, Category{CategoryID: rel.Target.ID})
	}
	return d, true, nil
}

// ProductReviews returns up to limit reviews of productID, highest review
// id first. A limit of zero or less uses DefaultReviewLimit.
func (q *Queries) ProductReviews(ctx context.Context, productID string, limit int) ([]Review, error) {
	if limit <= 0 {
		limit = DefaultReviewLimit
	}
	rels, err := q.engine.ForwardTraverse(ctx, ProductType, productID, query.TraverseOptions{
		TargetType: ReviewType,
		Descending: true,
		Limit:      int32(limit),
	})
	if err != nil {
		return nil, err
	}
	reviews := make([]Review, 0, len(rels))
	for _, rel := range rels {
		r, err := reviewLink(rel)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, nil
}

func reviewLink(rel query.Relationship) (Review, error) {
	var r Review
	if err := decode(rel.Row.Payload, &r); err != nil {
		return Review{}, fmt.Errorf("review %q: %w", rel.Target.ID, err)
	}
	r.ReviewID = rel.Target.ID
	r.ProductID = rel.Source.ID
	return r, nil
}

// ProductsInCategory returns the ids of the products linked to categoryID.
func (q *Queries) ProductsInCategory(ctx context.Context, categoryID string) ([]string, error) {
	rels, err := q.engine.InverseTraverse(ctx, CategoryType, categoryID, ProductType, query.TraverseOptions{})
	if err != nil {
		return nil, err
	}
	return query.SourceIDs(rels), nil
}

// OrderWithItems reads an order and its line items in one partition scan.
func (q *Queries) OrderWithItems(ctx context.Context, orderID string) (OrderDetails, bool, error) {
	agg, found, err := q.engine.AggregateWithRelationships(ctx, OrderType, orderID)
	if err != nil || !found {
		return OrderDetails{}, false, err
	}

	var d OrderDetails
	if err := decode(agg.Entity.Payload, &d.Order); err != nil {
		return OrderDetails{}, false, fmt.Errorf("order %q: %w", orderID, err)
	}
	for _, rel := range agg.Of(OrderItemTag) {
		var it OrderItem
		if err := decode(rel.Row.Payload, &it); err != nil {
			return OrderDetails{}, false, fmt.Errorf("order item %q: %w", rel.Target.ID, err)
		}
		it.OrderID = orderID
		it.ProductID = rel.Target.ID
		d.Items = append(d.Items, it)
	}

	if total := d.ItemsTotal(); d.Order.Total != 0 && total != d.Order.Total {
		q.logger.WarnContext(ctx, "order total mismatch", "order", orderID, "total", d.Order.Total, "items", total)
	}
	return d, true, nil
}

// UserReviews returns the ids of the reviews written by userID.
func (q *Queries) UserReviews(ctx context.Context, userID string) ([]string, error) {
	rels, err := q.engine.ForwardTraverse(ctx, UserType, userID, query.TraverseOptions{TargetType: ReviewType})
	if err != nil {
		return nil, err
	}
	return query.TargetIDs(rels), nil
}

// OrdersForProduct returns the ids of the orders containing productID.
func (q *Queries) OrdersForProduct(ctx context.Context, productID string) ([]string, error) {
	rels, err := q.engine.InverseTraverse(ctx, ProductType, productID, OrderType, query.TraverseOptions{})
	if err != nil {
		return nil, err
	}
	return query.SourceIDs(rels), nil
}

// ReviewsWithDetails returns the reviews of productID with the full review
// entity fetched for each link. Links whose review entity is missing are
// returned as projected.
func (q *Queries) ReviewsWithDetails(ctx context.Context, productID string, limit int) ([]Review, error) {
	if limit <= 0 {
		limit = DefaultReviewLimit
	}
	rels, err := q.engine.ForwardTraverse(ctx, ProductType, productID, query.TraverseOptions{
		TargetType: ReviewType,
		Descending: true,
		Limit:      int32(limit),
	})
	if err != nil {
		return nil, err
	}
	hydrated, err := q.engine.Hydrate(ctx, rels)
	if err != nil {
		return nil, err
	}
	reviews := make([]Review, 0, len(hydrated))
	for _, h := range hydrated {
		r, err := reviewLink(h.Relationship)
		if err != nil {
			return nil, err
		}
		if h.Found {
			if err := decode(h.Entity.Payload, &r); err != nil {
				return nil, fmt.Errorf("review %q: %w", h.Target.ID, err)
			}
		}
		reviews = append(reviews, r)
	}
	return reviews, nil
}
