package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/emrgen/vault/internal/model"
	"github.com/emrgen/vault/internal/store"
)

// Provider parses markers out of a node's raw content and keeps the derived
// entities of one kind reconciled with it. All persistence goes through the
// transaction-scoped store handed in by the caller, so a provider failure
// rolls back together with the node write.
type Provider interface {
	// Name identifies the provider in errors and logs.
	Name() string
	// Capability is the tag a node carries to opt into this provider.
	Capability() string
	// CanHandle reports whether the provider applies to the node.
	CanHandle(node *model.Node) bool
	// Validate runs structural checks over content without touching storage.
	Validate(node *model.Node, content string) []error
	// ParseAndReconcile scans content for markers, mints anchors for new
	// occurrences, upserts matching entities, deletes stale ones, and returns
	// the content with anchors embedded.
	ParseAndReconcile(ctx context.Context, tx store.Store, node *model.Node, content string) (string, error)
	// Cleanup deletes all entities owned by the given nodes.
	Cleanup(ctx context.Context, tx store.Store, nodeIDs []string) error
	// OnCopy re-anchors the copied content for the target node, creating
	// fresh entities with initial scheduling state.
	OnCopy(ctx context.Context, tx store.Store, src, dst *model.Node, content string) (string, error)
}

// Error wraps a provider failure with the provider's name so callers can
// attribute the abort.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Pipeline applies providers in fixed registration order. Each provider
// receives the content as rewritten by the previous one.
type Pipeline struct {
	providers []Provider
}

func NewPipeline(providers ...Provider) *Pipeline {
	return &Pipeline{providers: providers}
}

func (p *Pipeline) Providers() []Provider {
	return p.providers
}

// Run threads content through every applicable provider inside the caller's
// transaction and returns the final content to persist on the node row.
func (p *Pipeline) Run(ctx context.Context, tx store.Store, node *model.Node, content string) (string, error) {
	for _, prov := range p.providers {
		if !prov.CanHandle(node) {
			continue
		}

		if errs := prov.Validate(node, content); len(errs) > 0 {
			return "", &Error{Provider: prov.Name(), Err: errors.Join(errs...)}
		}

		next, err := prov.ParseAndReconcile(ctx, tx, node, content)
		if err != nil {
			return "", &Error{Provider: prov.Name(), Err: err}
		}
		content = next
	}

	return content, nil
}

// Cleanup removes every provider's entities for the given nodes. Invoked on
// cascading delete, inside the delete transaction.
func (p *Pipeline) Cleanup(ctx context.Context, tx store.Store, nodeIDs []string) error {
	for _, prov := range p.providers {
		if err := prov.Cleanup(ctx, tx, nodeIDs); err != nil {
			return &Error{Provider: prov.Name(), Err: err}
		}
	}
	return nil
}

// Copy re-anchors content for a duplicated node, provider by provider.
func (p *Pipeline) Copy(ctx context.Context, tx store.Store, src, dst *model.Node, content string) (string, error) {
	for _, prov := range p.providers {
		if !prov.CanHandle(dst) {
			continue
		}

		next, err := prov.OnCopy(ctx, tx, src, dst, content)
		if err != nil {
			return "", &Error{Provider: prov.Name(), Err: err}
		}
		content = next
	}

	return content, nil
}
