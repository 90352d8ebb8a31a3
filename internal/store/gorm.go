package store

import (
	"context"
	"errors"
	"time"

	"github.com/emrgen/vault/internal/model"
	"gorm.io/gorm"
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db: db,
	}
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db *gorm.DB
}

func (g *GormStore) CreateNode(ctx context.Context, node *model.Node) error {
	return g.db.WithContext(ctx).Create(node).Error
}

func (g *GormStore) GetNode(ctx context.Context, id string) (*model.Node, error) {
	var node model.Node
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (g *GormStore) GetNodeByPath(ctx context.Context, module, path string) (*model.Node, error) {
	var node model.Node
	err := g.db.WithContext(ctx).Where("module = ? AND path = ?", module, path).First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (g *GormStore) NodePathExists(ctx context.Context, module, path string) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&model.Node{}).
		Where("module = ? AND path = ?", module, path).
		Count(&count).Error
	return count > 0, err
}

func (g *GormStore) SaveNode(ctx context.Context, node *model.Node) error {
	return g.db.WithContext(ctx).Save(node).Error
}

func (g *GormStore) ListModuleNodes(ctx context.Context, module string) ([]*model.Node, error) {
	var nodes []*model.Node
	err := g.db.WithContext(ctx).Where("module = ?", module).Order("path").Find(&nodes).Error
	return nodes, err
}

func (g *GormStore) ListNodesByPathPrefix(ctx context.Context, module, prefix string) ([]*model.Node, error) {
	var nodes []*model.Node
	err := g.db.WithContext(ctx).
		Where("module = ? AND path LIKE ? ESCAPE '\\'", module, escapeLike(prefix)+"%").
		Order("path").
		Find(&nodes).Error
	return nodes, err
}

func (g *GormStore) DeleteNodes(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Where("id IN (?)", ids).Delete(&model.Node{}).Error
}

func (g *GormStore) CreateModule(ctx context.Context, mod *model.Module) error {
	return g.db.WithContext(ctx).Create(mod).Error
}

func (g *GormStore) GetModule(ctx context.Context, name string) (*model.Module, error) {
	var mod model.Module
	err := g.db.WithContext(ctx).Where("name = ?", name).First(&mod).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrModuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mod, nil
}

func (g *GormStore) ListModules(ctx context.Context) ([]*model.Module, error) {
	var mods []*model.Module
	err := g.db.WithContext(ctx).Order("name").Find(&mods).Error
	return mods, err
}

func (g *GormStore) DeleteModule(ctx context.Context, name string) error {
	return g.db.WithContext(ctx).Where("name = ?", name).Delete(&model.Module{}).Error
}

func (g *GormStore) SaveCard(ctx context.Context, card *model.Card) error {
	return g.db.WithContext(ctx).Save(card).Error
}

func (g *GormStore) GetCard(ctx context.Context, id string) (*model.Card, error) {
	var card model.Card
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (g *GormStore) ListNodeCards(ctx context.Context, nodeID string) ([]*model.Card, error) {
	var cards []*model.Card
	err := g.db.WithContext(ctx).Where("node_id = ?", nodeID).Order("created_at").Find(&cards).Error
	return cards, err
}

func (g *GormStore) ListModuleCards(ctx context.Context, module string) ([]*model.Card, error) {
	var cards []*model.Card
	err := g.db.WithContext(ctx).Where("module = ?", module).Order("created_at").Find(&cards).Error
	return cards, err
}

func (g *GormStore) ListDueCards(ctx context.Context, module string, cutoff time.Time) ([]*model.Card, error) {
	var cards []*model.Card
	err := g.db.WithContext(ctx).
		Where("module = ? AND due_at <= ?", module, cutoff).
		Order("due_at").
		Find(&cards).Error
	return cards, err
}

func (g *GormStore) DeleteCards(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Where("id IN (?)", ids).Delete(&model.Card{}).Error
}

func (g *GormStore) DeleteNodeCards(ctx context.Context, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Where("node_id IN (?)", nodeIDs).Delete(&model.Card{}).Error
}

func (g *GormStore) CardStats(ctx context.Context, module string, now time.Time) (*model.CardStats, error) {
	return g.cardStats(ctx, "module = ?", module, now)
}

func (g *GormStore) NodeCardStats(ctx context.Context, nodeID string, now time.Time) (*model.CardStats, error) {
	return g.cardStats(ctx, "node_id = ?", nodeID, now)
}

func (g *GormStore) cardStats(ctx context.Context, cond, arg string, now time.Time) (*model.CardStats, error) {
	stats := &model.CardStats{}
	db := g.db.WithContext(ctx).Model(&model.Card{})

	if err := db.Session(&gorm.Session{}).Where(cond, arg).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).Where(cond, arg).Where("due_at <= ?", now).Count(&stats.Due).Error; err != nil {
		return nil, err
	}
	// a card is new until it has been graded at least once
	if err := db.Session(&gorm.Session{}).Where(cond, arg).Where("repetitions = 0").Count(&stats.New).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

func (g *GormStore) SaveTask(ctx context.Context, task *model.Task) error {
	return g.db.WithContext(ctx).Save(task).Error
}

func (g *GormStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (g *GormStore) ListNodeTasks(ctx context.Context, nodeID string) ([]*model.Task, error) {
	var tasks []*model.Task
	err := g.db.WithContext(ctx).Where("node_id = ?", nodeID).Order("created_at").Find(&tasks).Error
	return tasks, err
}

func (g *GormStore) ListModuleTasks(ctx context.Context, module string) ([]*model.Task, error) {
	var tasks []*model.Task
	err := g.db.WithContext(ctx).Where("module = ?", module).Order("created_at").Find(&tasks).Error
	return tasks, err
}

func (g *GormStore) DeleteTasks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Where("id IN (?)", ids).Delete(&model.Task{}).Error
}

func (g *GormStore) DeleteNodeTasks(ctx context.Context, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Where("node_id IN (?)", nodeIDs).Delete(&model.Task{}).Error
}

func (g *GormStore) TaskStats(ctx context.Context, module string, now time.Time) (*model.TaskStats, error) {
	stats := &model.TaskStats{}
	db := g.db.WithContext(ctx).Model(&model.Task{})

	if err := db.Session(&gorm.Session{}).Where("module = ?", module).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).Where("module = ? AND done = ?", module, true).Count(&stats.Done).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).
		Where("module = ? AND done = ? AND due_at IS NOT NULL AND due_at < ?", module, false, now).
		Count(&stats.Overdue).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

func (g *GormStore) Migrate() error {
	return model.Migrate(g.db)
}

func (g *GormStore) Transaction(ctx context.Context, f func(tx Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(&GormStore{db: tx})
	})
}

// escapeLike escapes LIKE metacharacters so a path prefix scan matches the
// prefix literally.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
