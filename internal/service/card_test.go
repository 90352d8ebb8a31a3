package service

import (
	"context"
	"testing"
	"time"

	"github.com/emrgen/vault/internal/model"
	"github.com/emrgen/vault/internal/store"
	"github.com/emrgen/vault/internal/tester"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCardTestServices(t *testing.T) (*NodeService, *CardService, store.Store) {
	nodes, modules, st, bus := newTestServices()

	cards := NewCardService(st, tester.KV(), bus)

	_, err := modules.Mount(context.TODO(), "notes", "")
	require.NoError(t, err)

	return nodes, cards, st
}

func seedCards(t *testing.T, nodes *NodeService, content string) *model.Node {
	node, err := nodes.Create(context.TODO(), CreateNodeRequest{
		Module:  "notes",
		Path:    "/deck.md",
		Kind:    model.KindFile,
		Content: content,
	})
	require.NoError(t, err)
	return node
}

func TestCardService_Stats(t *testing.T) {
	nodes, cards, st := newCardTestServices(t)
	ctx := context.TODO()

	node := seedCards(t, nodes, "{{sun::star}}\n{{moon::satellite}}\n{{mars::planet}}")

	stats, err := cards.Stats(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(3), stats.New)
	assert.Equal(t, int64(3), stats.Due)

	// grading one card pushes it out of due and out of new
	owned, err := st.ListNodeCards(ctx, node.ID)
	require.NoError(t, err)
	_, err = cards.Grade(ctx, owned[0].ID, GradeGood)
	require.NoError(t, err)

	stats, err = cards.Stats(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.New)
	assert.Equal(t, int64(2), stats.Due)

	nodeStats, err := cards.NodeStats(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), nodeStats.Total)
}

func TestCardService_StatsInvalidation(t *testing.T) {
	nodes, cards, _ := newCardTestServices(t)
	ctx := context.TODO()

	node := seedCards(t, nodes, "{{sun::star}}")

	stats, err := cards.Stats(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)

	// a committed content write invalidates the cached aggregate
	content := "{{sun::star}}\n{{moon::satellite}}"
	_, err = nodes.Update(ctx, node.ID, UpdateNodeRequest{Content: &content})
	require.NoError(t, err)

	stats, err = cards.Stats(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
}

func TestCardService_ListDue(t *testing.T) {
	nodes, cards, st := newCardTestServices(t)
	ctx := context.TODO()

	node := seedCards(t, nodes, "{{sun::star}}\n{{moon::satellite}}")

	due, err := cards.ListDue(ctx, "notes")
	require.NoError(t, err)
	assert.Len(t, due, 2)

	owned, err := st.ListNodeCards(ctx, node.ID)
	require.NoError(t, err)
	_, err = cards.Grade(ctx, owned[0].ID, GradeGood)
	require.NoError(t, err)

	due, err = cards.ListDue(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.NotEqual(t, owned[0].ID, due[0].ID)
}

func TestCardService_Grade(t *testing.T) {
	nodes, cards, st := newCardTestServices(t)
	ctx := context.TODO()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	cards.now = func() time.Time { return now }

	node := seedCards(t, nodes, "{{sun::star}}")
	owned, err := st.ListNodeCards(ctx, node.ID)
	require.NoError(t, err)
	id := owned[0].ID

	// first successful review schedules one day out
	card, err := cards.Grade(ctx, id, GradeGood)
	require.NoError(t, err)
	assert.Equal(t, 1, card.Repetitions)
	assert.Equal(t, float64(1), card.IntervalDays)
	assert.Equal(t, now.Add(24*time.Hour), card.DueAt)
	assert.Equal(t, model.DefaultEase, card.Ease)

	// second review jumps to six days
	card, err = cards.Grade(ctx, id, GradeGood)
	require.NoError(t, err)
	assert.Equal(t, 2, card.Repetitions)
	assert.Equal(t, float64(6), card.IntervalDays)

	// from then on the interval grows by the ease factor
	card, err = cards.Grade(ctx, id, GradeGood)
	require.NoError(t, err)
	assert.Equal(t, 3, card.Repetitions)
	assert.InDelta(t, 15.0, card.IntervalDays, 0.001)

	// a lapse resets progress and docks ease
	card, err = cards.Grade(ctx, id, GradeAgain)
	require.NoError(t, err)
	assert.Equal(t, 0, card.Repetitions)
	assert.Equal(t, 1, card.Lapses)
	assert.Equal(t, float64(0), card.IntervalDays)
	assert.InDelta(t, 2.3, card.Ease, 0.001)
	assert.Equal(t, now, card.DueAt)

	_, err = cards.Grade(ctx, id, Grade(9))
	assert.True(t, IsValidation(err))
	_, err = cards.Grade(ctx, uuid.New().String(), GradeGood)
	assert.True(t, IsNotFound(err))
}

func TestCardService_GradeHardEasy(t *testing.T) {
	nodes, cards, st := newCardTestServices(t)
	ctx := context.TODO()

	node := seedCards(t, nodes, "{{sun::star}}\n{{moon::satellite}}")
	owned, err := st.ListNodeCards(ctx, node.ID)
	require.NoError(t, err)

	hard, err := cards.Grade(ctx, owned[0].ID, GradeHard)
	require.NoError(t, err)
	assert.Equal(t, float64(1), hard.IntervalDays)
	assert.InDelta(t, 2.35, hard.Ease, 0.001)

	easy, err := cards.Grade(ctx, owned[1].ID, GradeEasy)
	require.NoError(t, err)
	assert.InDelta(t, 1.3, easy.IntervalDays, 0.001)
	assert.InDelta(t, 2.65, easy.Ease, 0.001)

	// ease never drops below the floor
	for i := 0; i < 10; i++ {
		hard, err = cards.Grade(ctx, owned[0].ID, GradeAgain)
		require.NoError(t, err)
	}
	assert.Equal(t, 1.3, hard.Ease)
}

func TestCardService_Reset(t *testing.T) {
	nodes, cards, st := newCardTestServices(t)
	ctx := context.TODO()

	node := seedCards(t, nodes, "{{sun::star}}")
	owned, err := st.ListNodeCards(ctx, node.ID)
	require.NoError(t, err)
	id := owned[0].ID

	_, err = cards.Grade(ctx, id, GradeGood)
	require.NoError(t, err)
	_, err = cards.Grade(ctx, id, GradeGood)
	require.NoError(t, err)

	card, err := cards.Reset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, card.Repetitions)
	assert.Equal(t, 0, card.Lapses)
	assert.Equal(t, float64(0), card.IntervalDays)
	assert.Equal(t, model.DefaultEase, card.Ease)
	assert.Equal(t, "sun", card.Front)
}

func TestTaskService_StatsAndSetDone(t *testing.T) {
	nodes, modules, st, bus := newTestServices()
	ctx := context.TODO()

	tasks := NewTaskService(st, tester.KV(), bus)

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)

	node, err := nodes.Create(ctx, CreateNodeRequest{
		Module: "notes",
		Path:   "/todo.md",
		Kind:   model.KindFile,
		Content: "- [ ] water plants @due(2020-01-01)\n" +
			"- [x] file taxes\n" +
			"- [ ] call bank @assignee(sam)",
	})
	require.NoError(t, err)

	stats, err := tasks.Stats(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Done)
	assert.Equal(t, int64(1), stats.Overdue)

	owned, err := tasks.List(ctx, node.ID)
	require.NoError(t, err)
	require.Len(t, owned, 3)

	var open *model.Task
	for _, task := range owned {
		if task.Body == "water plants" {
			open = task
		}
	}
	require.NotNil(t, open)

	done, err := tasks.SetDone(ctx, open.ID, true)
	require.NoError(t, err)
	assert.True(t, done.Done)

	stats, err = tasks.Stats(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Done)
	assert.Equal(t, int64(0), stats.Overdue)

	_, err = tasks.SetDone(ctx, uuid.New().String(), true)
	assert.True(t, IsNotFound(err))

	// flipping the flag never rewrites the checklist text
	after, err := nodes.Get(ctx, node.ID)
	require.NoError(t, err)
	assert.Contains(t, after.Content, "- [ ] water plants")
}
