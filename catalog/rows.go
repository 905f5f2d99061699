package catalog

import (
	"github.com/jacentio/arbor/store"
)

// Registry declares the relation kinds of the catalog table.
//
//	OrderCustomer    ORDER -> USER        inverse under ORDER
//	OrderItem        ORDER -> PRODUCT     inverse under ORDER
//	ProductReview    PRODUCT -> REVIEW
//	UserReview       USER -> REVIEW
//	ProductCategory  PRODUCT -> CATEGORY  inverse under PRODUCT
//	CategoryChild    CATEGORY -> CATEGORY inverse under CHILD_OF
func Registry() *store.Registry {
	r := store.NewRegistry()
	r.Register(store.RelationKind{TypeTag: OrderCustomerTag, SourceType: OrderType, TargetType: UserType, Kind: OrderType, Inverse: true})
	r.Register(store.RelationKind{TypeTag: OrderItemTag, SourceType: OrderType, TargetType: ProductType, Kind: OrderType, Inverse: true})
	r.Register(store.RelationKind{TypeTag: ProductReviewTag, SourceType: ProductType, TargetType: ReviewType})
	r.Register(store.RelationKind{TypeTag: UserReviewTag, SourceType: UserType, TargetType: ReviewType})
	r.Register(store.RelationKind{TypeTag: ProductCategoryTag, SourceType: ProductType, TargetType: CategoryType, Kind: ProductType, Inverse: true})
	r.Register(store.RelationKind{TypeTag: CategoryChildTag, SourceType: CategoryType, TargetType: CategoryType, Kind: "CHILD_OF", Inverse: true})
	return r
}

// Writer builds the rows of catalog entities and their relationships.
type Writer struct {
	registry *store.Registry
}

// NewWriter creates a Writer over Registry().
func NewWriter() *Writer {
	return &Writer{registry: Registry()}
}

func (w *Writer) entity(typ, tag, id string, v any) (store.Row, error) {
	data, err := encode(v)
	if err != nil {
		return store.Row{}, err
	}
	return w.registry.EntityRow(typ, tag, id, data)
}

func (w *Writer) link(tag, source, target string, v any) (store.Row, error) {
	data, err := encode(v)
	if err != nil {
		return store.Row{}, err
	}
	return w.registry.RelationshipRow(tag, source, target, data)
}

func (w *Writer) User(u User) (store.Row, error) {
	return w.entity(UserType, UserTag, u.UserID, u)
}

func (w *Writer) Product(p Product) (store.Row, error) {
	return w.entity(ProductType, ProductTag, p.ProductID, p)
}

func (w *Writer) Category(c Category) (store.Row, error) {
	return w.entity(CategoryType, CategoryTag, c.CategoryID, c)
}

// Order returns the order entity row, the link to its customer carrying the
// order itself, and one OrderItem row per line item.
func (w *Writer) Order(o Order, items []OrderItem) ([]store.Row, error) {
	rows := make([]store.Row, 0, 2+len(items))

	entity, err := w.entity(OrderType, OrderTag, o.OrderID, o)
	if err != nil {
		return nil, err
	}
	customer, err := w.link(OrderCustomerTag, o.OrderID, o.CustomerID, o)
	if err != nil {
		return nil, err
	}
	rows = append(rows, entity, customer)

	for _, it := range items {
		it.OrderID = o.OrderID
		row, err := w.link(OrderItemTag, o.OrderID, it.ProductID, it)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Review returns the review entity row and its links from the product and
// from the customer. The product link projects the rating.
func (w *Writer) Review(r Review) ([]store.Row, error) {
	entity, err := w.entity(ReviewType, ReviewTag, r.ReviewID, r)
	if err != nil {
		return nil, err
	}
	byProduct, err := w.link(ProductReviewTag, r.ProductID, r.ReviewID, map[string]any{
		"reviewId":  r.ReviewID,
		"productId": r.ProductID,
		"rating":    r.Rating,
	})
	if err != nil {
		return nil, err
	}
	byUser, err := w.link(UserReviewTag, r.CustomerID, r.ReviewID, map[string]any{
		"reviewId": r.ReviewID,
	})
	if err != nil {
		return nil, err
	}
	return []store.Row{entity, byProduct, byUser}, nil
}

// Categorize links a product to a category.
func (w *Writer) Categorize(productID, categoryID string) (store.Row, error) {
	return w.link(ProductCategoryTag, productID, categoryID, map[string]any{
		"productId":  productID,
		"categoryId": categoryID,
	})
}
