package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/vault/internal/model"
	"github.com/emrgen/vault/internal/store"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// card markers are inline spans: {{front::back}} or {{front::back ^<uuid>}}
	cardSpanRe   = regexp.MustCompile(`\{\{([^{}\n]+)\}\}`)
	cardAnchorRe = regexp.MustCompile(`\s+\^([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})$`)
)

// CardProvider derives spaced-repetition cards from {{front::back}} spans.
type CardProvider struct {
	now func() time.Time
}

var _ Provider = (*CardProvider)(nil)

func NewCardProvider() *CardProvider {
	return &CardProvider{now: time.Now}
}

func (c *CardProvider) Name() string {
	return "card"
}

func (c *CardProvider) Capability() string {
	return "card"
}

func (c *CardProvider) CanHandle(node *model.Node) bool {
	return node.Kind == model.KindFile && node.HasCapability(c.Capability())
}

func (c *CardProvider) Validate(node *model.Node, content string) []error {
	var errs []error
	for _, m := range cardSpanRe.FindAllStringSubmatch(content, -1) {
		body, _ := splitCardAnchor(m[1])

		front, back, ok := strings.Cut(body, "::")
		if !ok {
			errs = append(errs, fmt.Errorf("card marker %q: missing '::' separator", body))
			continue
		}
		if err := validation.Validate(strings.TrimSpace(front), validation.Required); err != nil {
			errs = append(errs, fmt.Errorf("card marker %q: front %v", body, err))
		}
		if err := validation.Validate(strings.TrimSpace(back), validation.Required); err != nil {
			errs = append(errs, fmt.Errorf("card marker %q: back %v", body, err))
		}
	}
	return errs
}

func (c *CardProvider) ParseAndReconcile(ctx context.Context, tx store.Store, node *model.Node, content string) (string, error) {
	existing, err := tx.ListNodeCards(ctx, node.ID)
	if err != nil {
		return "", err
	}

	owned := make(map[string]*model.Card, len(existing))
	ownedIDs := mapset.NewSet[string]()
	for _, card := range existing {
		owned[card.ID] = card
		ownedIDs.Add(card.ID)
	}

	seen := mapset.NewSet[string]()
	now := c.now()

	var out strings.Builder
	last := 0
	for _, m := range cardSpanRe.FindAllStringSubmatchIndex(content, -1) {
		inner := content[m[2]:m[3]]
		body, anchor := splitCardAnchor(inner)
		front, back, _ := strings.Cut(body, "::")

		if anchor == "" {
			anchor = uuid.New().String()
		}

		card, ok := owned[anchor]
		if !ok {
			card = &model.Card{
				ID:     anchor,
				NodeID: node.ID,
				Module: node.Module,
			}
			card.NewCardState(now)
		}
		card.Front = strings.TrimSpace(front)
		card.Back = strings.TrimSpace(back)

		if err := tx.SaveCard(ctx, card); err != nil {
			return "", err
		}
		seen.Add(anchor)

		out.WriteString(content[last:m[0]])
		out.WriteString("{{")
		out.WriteString(body)
		out.WriteString(" ^")
		out.WriteString(anchor)
		out.WriteString("}}")
		last = m[1]
	}
	out.WriteString(content[last:])

	stale := ownedIDs.Difference(seen)
	if stale.Cardinality() > 0 {
		logrus.Debugf("deleting %d stale cards for node %s", stale.Cardinality(), node.ID)
		if err := tx.DeleteCards(ctx, stale.ToSlice()); err != nil {
			return "", err
		}
	}

	return out.String(), nil
}

func (c *CardProvider) Cleanup(ctx context.Context, tx store.Store, nodeIDs []string) error {
	return tx.DeleteNodeCards(ctx, nodeIDs)
}

// OnCopy mints a fresh anchor for every card span in the copied content and
// creates new cards with initial scheduling state. Copies never share rows
// with the source node.
func (c *CardProvider) OnCopy(ctx context.Context, tx store.Store, src, dst *model.Node, content string) (string, error) {
	now := c.now()

	var out strings.Builder
	last := 0
	for _, m := range cardSpanRe.FindAllStringSubmatchIndex(content, -1) {
		inner := content[m[2]:m[3]]
		body, _ := splitCardAnchor(inner)
		front, back, _ := strings.Cut(body, "::")

		anchor := uuid.New().String()
		card := &model.Card{
			ID:     anchor,
			NodeID: dst.ID,
			Module: dst.Module,
			Front:  strings.TrimSpace(front),
			Back:   strings.TrimSpace(back),
		}
		card.NewCardState(now)

		if err := tx.SaveCard(ctx, card); err != nil {
			return "", err
		}

		out.WriteString(content[last:m[0]])
		out.WriteString("{{")
		out.WriteString(body)
		out.WriteString(" ^")
		out.WriteString(anchor)
		out.WriteString("}}")
		last = m[1]
	}
	out.WriteString(content[last:])

	return out.String(), nil
}

// splitCardAnchor splits the span body from its trailing anchor token, if any.
func splitCardAnchor(inner string) (body, anchor string) {
	if m := cardAnchorRe.FindStringSubmatch(inner); m != nil {
		return inner[:len(inner)-len(m[0])], m[1]
	}
	return inner, ""
}
