// Package hierarchy navigates parent/child trees stored as relationship rows.
//
// An edge from parent to child is the row
//
//	PK = CATEGORY#<parent>  SK = CATEGORY#<child>  Type = CategoryChild
//	GSI1PK = CATEGORY#<child>  GSI1SK = CHILD_OF#<parent>
//
// so children are a forward traversal of the parent's partition and the
// parent is an inverse traversal from the child. Node type, relation kind
// and type tag are configurable.
package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jacentio/arbor/query"
	"github.com/jacentio/arbor/store"
)

const (
	DefaultNodeType    = "CATEGORY"
	DefaultNodeTag     = "Category"
	DefaultKind        = "CHILD_OF"
	DefaultEdgeTag     = "CategoryChild"
	DefaultConcurrency = 8
)

var (
	// ErrCycleDetected matches *CycleError.
	ErrCycleDetected = errors.New("arbor: cycle detected in hierarchy")

	// ErrDepthExceeded is returned when an ancestor path grows beyond the
	// configured maximum depth.
	ErrDepthExceeded = errors.New("arbor: hierarchy depth exceeded")

	// ErrMultipleParents is returned when a node has more than one parent
	// edge, so no single ancestor path exists.
	ErrMultipleParents = errors.New("arbor: node has more than one parent")
)

// CycleError reports the ancestor chain walked before a node reappeared.
type CycleError struct {
	// Path lists the nodes from the starting node upwards.
	Path []string

	// Node is the node that was reached twice.
	Node string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("arbor: cycle detected in hierarchy: %s -> %s", strings.Join(e.Path, " -> "), e.Node)
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}

// Navigator walks one hierarchy through a query.Engine.
type Navigator struct {
	engine      *query.Engine
	edge        store.RelationKind
	nodeTag     string
	maxDepth    int
	concurrency int
	logger      *slog.Logger
	registry    *store.Registry
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithNodeType sets the entity type of the nodes. Default: "CATEGORY".
func WithNodeType(t string) Option {
	return func(n *Navigator) {
		n.edge.SourceType = t
		n.edge.TargetType = t
	}
}

// WithNodeTag sets the Type discriminator of node entity rows written by
// NodeRows. Default: "Category".
func WithNodeTag(tag string) Option {
	return func(n *Navigator) { n.nodeTag = tag }
}

// WithKind sets the relation kind of the child-of projection.
// Default: "CHILD_OF".
func WithKind(kind string) Option {
	return func(n *Navigator) { n.edge.Kind = kind }
}

// WithEdgeTag sets the Type discriminator of edge rows.
// Default: "CategoryChild".
func WithEdgeTag(tag string) Option {
	return func(n *Navigator) { n.edge.TypeTag = tag }
}

// WithMaxDepth bounds the length of an ancestor path. Default: 32.
func WithMaxDepth(d int) Option {
	return func(n *Navigator) {
		if d > 0 {
			n.maxDepth = d
		}
	}
}

// WithConcurrency bounds the child lookups Descendants runs at once.
// Default: 8.
func WithConcurrency(c int) Option {
	return func(n *Navigator) {
		if c > 0 {
			n.concurrency = c
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(n *Navigator) {
		if l != nil {
			n.logger = l
		}
	}
}

// New creates a Navigator. It panics if the options describe an invalid
// edge kind, the same way store.Registry.Register does.
func New(engine *query.Engine, opts ...Option) *Navigator {
	n := &Navigator{
		engine: engine,
		edge: store.RelationKind{
			TypeTag:    DefaultEdgeTag,
			SourceType: DefaultNodeType,
			TargetType: DefaultNodeType,
			Kind:       DefaultKind,
			Inverse:    true,
		},
		nodeTag:     DefaultNodeTag,
		maxDepth:    store.DefaultMaxDepth,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.registry = store.NewRegistry()
	n.registry.Register(n.edge)
	return n
}

// EdgeKind returns the relation kind of the navigator's edges, for
// registering alongside other kinds of the same table.
func (n *Navigator) EdgeKind() store.RelationKind {
	return n.edge
}

// Parent returns the parent of id. ok is false for a root.
func (n *Navigator) Parent(ctx context.Context, id string) (parent string, ok bool, err error) {
	rels, err := n.engine.InverseTraverse(ctx, n.edge.TargetType, id, n.edge.Kind, query.TraverseOptions{Limit: 2})
	if err != nil {
		return "", false, err
	}
	switch len(rels) {
	case 0:
		return "", false, nil
	case 1:
		return rels[0].Source.ID, true, nil
	default:
		return "", false, fmt.Errorf("%w: %q", ErrMultipleParents, id)
	}
}

// Children returns the direct children of id in sort key order.
func (n *Navigator) Children(ctx context.Context, id string) ([]string, error) {
	rels, err := n.engine.ForwardTraverse(ctx, n.edge.SourceType, id, query.TraverseOptions{
		TargetType: n.edge.TargetType,
		Kind:       n.edge.Kind,
	})
	if err != nil {
		return nil, err
	}
	return query.TargetIDs(rels), nil
}

// AncestorPath returns the chain from the root down to id, root first and
// id last. A root yields [id]. The walk is iterative, costs one lookup per
// level, and fails with *CycleError if a node repeats or ErrDepthExceeded
// if the path would grow beyond the maximum depth.
func (n *Navigator) AncestorPath(ctx context.Context, id string) ([]string, error) {
	path := []string{id}
	seen := map[string]bool{id: true}

	for cur := id; ; {
		parent, ok, err := n.Parent(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("ancestor path of %q: %w", id, err)
		}
		if !ok {
			break
		}
		if seen[parent] {
			n.logger.WarnContext(ctx, "hierarchy cycle", "node", id, "repeated", parent)
			return nil, &CycleError{Path: path, Node: parent}
		}
		if len(path) >= n.maxDepth {
			return nil, fmt.Errorf("%w: %q is deeper than %d", ErrDepthExceeded, id, n.maxDepth)
		}
		seen[parent] = true
		path = append(path, parent)
		cur = parent
	}

	slices.Reverse(path)
	return path, nil
}

// Descendants returns every node below id, excluding id, in breadth-first
// discovery order. Each level is expanded concurrently. A node reachable
// along several paths is listed once, and cycles terminate because visited
// nodes are never expanded again.
func (n *Navigator) Descendants(ctx context.Context, id string) ([]string, error) {
	visited := map[string]bool{id: true}
	var out []string

	for level := []string{id}; len(level) > 0; {
		children := make([][]string, len(level))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(n.concurrency)
		for i, node := range level {
			i, node := i, node
			g.Go(func() error {
				c, err := n.Children(gctx, node)
				if err != nil {
					return fmt.Errorf("children of %q: %w", node, err)
				}
				children[i] = c
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for _, cs := range children {
			for _, c := range cs {
				if visited[c] {
					continue
				}
				visited[c] = true
				out = append(out, c)
				next = append(next, c)
			}
		}
		level = next
	}

	n.logger.DebugContext(ctx, "descendants", "node", id, "count", len(out))
	return out, nil
}

// NodeRows builds the rows that store node id: its entity row and, unless
// parentID is empty, the edge from parentID.
func (n *Navigator) NodeRows(id, parentID string, data map[string]any) ([]store.Row, error) {
	entity, err := n.registry.EntityRow(n.edge.SourceType, n.nodeTag, id, data)
	if err != nil {
		return nil, err
	}
	if parentID == "" {
		return []store.Row{entity}, nil
	}
	edge, err := n.registry.RelationshipRow(n.edge.TypeTag, parentID, id, nil)
	if err != nil {
		return nil, err
	}
	return []store.Row{entity, edge}, nil
}
