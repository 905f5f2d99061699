//go:build e2e

// Package e2e contains end-to-end integration tests against a real DynamoDB
// table. Point ARBOR_ENDPOINT at DynamoDB Local to run them offline.
// Run with: go test -tags=e2e -v ./e2e/...
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/arbor/catalog"
	"github.com/jacentio/arbor/hierarchy"
	"github.com/jacentio/arbor/keys"
	"github.com/jacentio/arbor/query"
	"github.com/jacentio/arbor/sharding"
	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/store/dynamo"
)

// Table names are unique per test run to avoid conflicts.
const tablePrefix = "arbor-e2e-test"

var (
	cfg       store.Config
	ddbClient *dynamodb.Client
	adapter   store.Adapter
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	cfg, err = store.LoadConfig(os.Getenv("ARBOR_CONFIG"))
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.TableName = fmt.Sprintf("%s-%s", tablePrefix, uuid.New().String()[:8])
	fmt.Printf("Table: %s\n", cfg.TableName)

	ddbClient, err = dynamo.NewClient(ctx, cfg)
	if err != nil {
		fmt.Printf("Failed to create DynamoDB client: %v\n", err)
		os.Exit(1)
	}

	if err := createTable(ctx); err != nil {
		fmt.Printf("Failed to create table: %v\n", err)
		os.Exit(1)
	}

	adapter = store.Retrying(dynamo.New(ddbClient, cfg), cfg.RetryPolicy(), nil)

	code := m.Run()

	if _, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(cfg.TableName)}); err != nil {
		fmt.Printf("Warning: failed to delete table %s: %v\n", cfg.TableName, err)
	}

	os.Exit(code)
}

func createTable(ctx context.Context) error {
	s := func(name string) types.AttributeDefinition {
		return types.AttributeDefinition{AttributeName: aws.String(name), AttributeType: types.ScalarAttributeTypeS}
	}

	_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(cfg.TableName),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(store.AttrPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(store.AttrSK), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			s(store.AttrPK), s(store.AttrSK), s(store.AttrGSI1PK), s(store.AttrGSI1SK),
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName: aws.String(cfg.IndexName),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(store.AttrGSI1PK), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(store.AttrGSI1SK), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", cfg.TableName, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(ddbClient)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(cfg.TableName)}, 2*time.Minute); err != nil {
		return fmt.Errorf("wait for table %s: %w", cfg.TableName, err)
	}
	return nil
}

// uid returns an identifier unique to this run, so tests never share rows.
func uid(prefix string) string {
	return prefix + uuid.New().String()[:8]
}

// eventually retries check while the index catches up; GSI reads are
// eventually consistent.
func eventually(t *testing.T, check func() error) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		err := check()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal(err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func TestCatalog_RoundTrip(t *testing.T) {
	ctx := context.Background()
	w := catalog.NewWriter()
	userID, productID, orderID := uid("u"), uid("p"), uid("o")

	var rows []store.Row
	u, err := w.User(catalog.User{UserID: userID, Name: "John Doe", UserType: "customer"})
	if err != nil {
		t.Fatal(err)
	}
	p, err := w.Product(catalog.Product{ProductID: productID, Name: "Laptop Pro", Price: 1299.99})
	if err != nil {
		t.Fatal(err)
	}
	c, err := w.Categorize(productID, "laptops")
	if err != nil {
		t.Fatal(err)
	}
	order, err := w.Order(catalog.Order{OrderID: orderID, CustomerID: userID, Total: 1299.99},
		[]catalog.OrderItem{{ProductID: productID, Quantity: 1, UnitPrice: 1299.99, TotalPrice: 1299.99}})
	if err != nil {
		t.Fatal(err)
	}
	rows = append(rows, u, p, c)
	rows = append(rows, order...)
	for i := 0; i < 3; i++ {
		r, err := w.Review(catalog.Review{ReviewID: fmt.Sprintf("%s-%d", productID, i), CustomerID: userID, ProductID: productID, Rating: 5 - i})
		if err != nil {
			t.Fatal(err)
		}
		rows = append(rows, r...)
	}
	if err := store.PutAll(ctx, adapter, rows, cfg.BatchOptions()); err != nil {
		t.Fatalf("PutAll: %v", err)
	}

	q := catalog.NewQueries(query.New(adapter), nil)

	d, found, err := q.ProductWithRelationships(ctx, productID)
	if err != nil || !found {
		t.Fatalf("expected product, got found=%v err=%v", found, err)
	}
	if len(d.Reviews) != 3 || len(d.Categories) != 1 {
		t.Errorf("expected 3 reviews and 1 category, got %d and %d", len(d.Reviews), len(d.Categories))
	}

	reviews, err := q.ProductReviews(ctx, productID, 2)
	if err != nil {
		t.Fatalf("ProductReviews: %v", err)
	}
	if len(reviews) != 2 || reviews[0].ReviewID != productID+"-2" {
		t.Errorf("expected the 2 highest review ids, got %+v", reviews)
	}

	eventually(t, func() error {
		orders, err := q.UserOrders(ctx, userID)
		if err != nil {
			return err
		}
		if len(orders) != 1 || orders[0].OrderID != orderID {
			return fmt.Errorf("expected order %s, got %+v", orderID, orders)
		}
		return nil
	})

	eventually(t, func() error {
		ids, err := q.OrdersForProduct(ctx, productID)
		if err != nil {
			return err
		}
		if len(ids) != 1 || ids[0] != orderID {
			return fmt.Errorf("expected [%s], got %v", orderID, ids)
		}
		return nil
	})
}

func TestHierarchy_AncestorPath(t *testing.T) {
	ctx := context.Background()
	nav := hierarchy.New(query.New(adapter), hierarchy.WithNodeType(uid("NODE")))
	root, mid, leaf := uid("r"), uid("m"), uid("l")

	var rows []store.Row
	for _, e := range [][2]string{{root, ""}, {mid, root}, {leaf, mid}} {
		r, err := nav.NodeRows(e[0], e[1], nil)
		if err != nil {
			t.Fatal(err)
		}
		rows = append(rows, r...)
	}
	if err := store.PutAll(ctx, adapter, rows, cfg.BatchOptions()); err != nil {
		t.Fatalf("PutAll: %v", err)
	}

	eventually(t, func() error {
		path, err := nav.AncestorPath(ctx, leaf)
		if err != nil {
			return err
		}
		if len(path) != 3 || path[0] != root || path[2] != leaf {
			return fmt.Errorf("expected [%s %s %s], got %v", root, mid, leaf, path)
		}
		return nil
	})

	desc, err := nav.Descendants(ctx, root)
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	if len(desc) != 2 || desc[0] != mid || desc[1] != leaf {
		t.Errorf("expected [%s %s], got %v", mid, leaf, desc)
	}
}

func TestHierarchy_Cycle(t *testing.T) {
	ctx := context.Background()
	nav := hierarchy.New(query.New(adapter), hierarchy.WithNodeType(uid("LOOP")))
	a, b := uid("a"), uid("b")

	var rows []store.Row
	for _, e := range [][2]string{{a, b}, {b, a}} {
		r, err := nav.NodeRows(e[0], e[1], nil)
		if err != nil {
			t.Fatal(err)
		}
		rows = append(rows, r...)
	}
	if err := store.PutAll(ctx, adapter, rows, cfg.BatchOptions()); err != nil {
		t.Fatalf("PutAll: %v", err)
	}

	eventually(t, func() error {
		_, err := nav.AncestorPath(ctx, a)
		if !errors.Is(err, hierarchy.ErrCycleDetected) {
			return fmt.Errorf("expected ErrCycleDetected, got %v", err)
		}
		return nil
	})
}

func TestSharding_ReadBack(t *testing.T) {
	ctx := context.Background()
	c := sharding.New(adapter)
	user := keys.Ref{Type: "USER", ID: uid("s")}

	var markers []string
	for i := 0; i < 10; i++ {
		a, err := c.WriteShardedAppend(ctx, user, map[string]any{"action": fmt.Sprintf("view_%d", i)}, cfg.ShardCount)
		if err != nil {
			t.Fatalf("WriteShardedAppend: %v", err)
		}
		markers = append(markers, a.Marker)
	}

	got, err := c.ReadShardedAppends(ctx, user, cfg.ShardCount)
	if err != nil {
		t.Fatalf("ReadShardedAppends: %v", err)
	}
	if len(got) != len(markers) {
		t.Fatalf("expected %d activities, got %d", len(markers), len(got))
	}
	for i := range got {
		if want := markers[len(markers)-1-i]; got[i].Marker != want {
			t.Errorf("position %d: expected %q, got %q", i, want, got[i].Marker)
		}
	}
}
