package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/emrgen/vault/internal/cache"
	"github.com/emrgen/vault/internal/event"
	"github.com/emrgen/vault/internal/model"
	"github.com/emrgen/vault/internal/store"
	"github.com/sirupsen/logrus"
)

// Grade is the review outcome of one card.
type Grade int

const (
	GradeAgain Grade = iota
	GradeHard
	GradeGood
	GradeEasy
)

const (
	cardStatsTTL = time.Minute
	minEase      = 1.3
)

func cardStatsKey(module string) string {
	return "vault:card:stats:" + module
}

// NewCardService creates a new CardService. Cached module stats are
// invalidated through bus subscriptions, so reads stay consistent with
// committed writes without touching content.
func NewCardService(st store.Store, kv cache.KV, bus *event.Bus) *CardService {
	s := &CardService{
		store: st,
		kv:    kv,
		now:   time.Now,
	}

	invalidate := func(e event.Event) {
		if err := kv.Delete(context.Background(), cardStatsKey(e.Module)); err != nil {
			logrus.Errorf("failed to invalidate card stats for module %s: %v", e.Module, err)
		}
	}
	bus.Subscribe(event.NodeAdded, invalidate)
	bus.Subscribe(event.NodeContentUpdated, invalidate)
	bus.Subscribe(event.NodeRemoved, invalidate)

	return s
}

// CardService exposes the card provider's read side: aggregate stats and
// single-card scheduling mutations that never touch node content.
type CardService struct {
	store store.Store
	kv    cache.KV
	now   func() time.Time
}

// Stats aggregates card counts for a module, serving from cache when a fresh
// committed value is available.
func (s *CardService) Stats(ctx context.Context, module string) (*model.CardStats, error) {
	key := cardStatsKey(module)
	if data, ok, err := s.kv.Get(ctx, key); err == nil && ok {
		stats := &model.CardStats{}
		if err := json.Unmarshal(data, stats); err == nil {
			return stats, nil
		}
	}

	stats, err := s.store.CardStats(ctx, module, s.now())
	if err != nil {
		return nil, wrapErr(err)
	}

	if data, err := json.Marshal(stats); err == nil {
		if err := s.kv.Set(ctx, key, data, cardStatsTTL); err != nil {
			logrus.Errorf("failed to cache card stats for module %s: %v", module, err)
		}
	}

	return stats, nil
}

// NodeStats aggregates card counts for a single node.
func (s *CardService) NodeStats(ctx context.Context, nodeID string) (*model.CardStats, error) {
	stats, err := s.store.NodeCardStats(ctx, nodeID, s.now())
	if err != nil {
		return nil, wrapErr(err)
	}
	return stats, nil
}

// ListDue retrieves the module's cards due at or before now, soonest first.
func (s *CardService) ListDue(ctx context.Context, module string) ([]*model.Card, error) {
	cards, err := s.store.ListDueCards(ctx, module, s.now())
	if err != nil {
		return nil, wrapErr(err)
	}
	return cards, nil
}

// Grade applies one review outcome to a card's scheduling state.
func (s *CardService) Grade(ctx context.Context, id string, grade Grade) (*model.Card, error) {
	if grade < GradeAgain || grade > GradeEasy {
		return nil, validationErr(fmt.Errorf("unknown grade %d", grade))
	}

	card, err := s.store.GetCard(ctx, id)
	if errors.Is(err, store.ErrCardNotFound) {
		return nil, notFoundErr("", "", id, err)
	}
	if err != nil {
		return nil, wrapErr(err)
	}

	schedule(card, grade, s.now())
	if err := s.store.SaveCard(ctx, card); err != nil {
		return nil, wrapErr(err)
	}

	if err := s.kv.Delete(ctx, cardStatsKey(card.Module)); err != nil {
		logrus.Errorf("failed to invalidate card stats for module %s: %v", card.Module, err)
	}

	return card, nil
}

// Reset returns a card to its initial scheduling state.
func (s *CardService) Reset(ctx context.Context, id string) (*model.Card, error) {
	card, err := s.store.GetCard(ctx, id)
	if errors.Is(err, store.ErrCardNotFound) {
		return nil, notFoundErr("", "", id, err)
	}
	if err != nil {
		return nil, wrapErr(err)
	}

	card.NewCardState(s.now())
	if err := s.store.SaveCard(ctx, card); err != nil {
		return nil, wrapErr(err)
	}

	if err := s.kv.Delete(ctx, cardStatsKey(card.Module)); err != nil {
		logrus.Errorf("failed to invalidate card stats for module %s: %v", card.Module, err)
	}

	return card, nil
}

// schedule advances a card's SM-2 style state by one review.
func schedule(card *model.Card, grade Grade, now time.Time) {
	if grade == GradeAgain {
		card.Lapses++
		card.Repetitions = 0
		card.IntervalDays = 0
		card.Ease = maxEase(card.Ease - 0.2)
		card.DueAt = now
		return
	}

	var interval float64
	switch {
	case card.Repetitions == 0:
		interval = 1
	case card.Repetitions == 1:
		interval = 6
	default:
		interval = card.IntervalDays * card.Ease
	}

	switch grade {
	case GradeHard:
		card.Ease = maxEase(card.Ease - 0.15)
		if interval > card.IntervalDays+1 {
			interval = card.IntervalDays + 1
		}
	case GradeEasy:
		card.Ease += 0.15
		interval *= 1.3
	}

	card.Repetitions++
	card.IntervalDays = interval
	card.DueAt = now.Add(time.Duration(interval * 24 * float64(time.Hour)))
}

func maxEase(ease float64) float64 {
	if ease < minEase {
		return minEase
	}
	return ease
}
