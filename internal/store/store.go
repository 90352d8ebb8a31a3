package store

import (
	"context"
	"errors"
	"time"

	"github.com/emrgen/vault/internal/model"
)

var (
	// ErrNodeNotFound is returned when a node id or path resolves to nothing.
	ErrNodeNotFound = errors.New("node not found")
	// ErrModuleNotFound is returned when a module name is not mounted.
	ErrModuleNotFound = errors.New("module not found")
	// ErrCardNotFound is returned when a card id resolves to nothing.
	ErrCardNotFound = errors.New("card not found")
	// ErrTaskNotFound is returned when a task id resolves to nothing.
	ErrTaskNotFound = errors.New("task not found")
)

type Store interface {
	NodeStore
	ModuleStore
	CardStore
	TaskStore
	// Transaction runs f against a transaction-scoped Store. All writes made
	// through the scoped store commit together or roll back together.
	Transaction(ctx context.Context, f func(tx Store) error) error
	Migrate() error
}

type NodeStore interface {
	// CreateNode persists a new node row.
	CreateNode(ctx context.Context, node *model.Node) error
	// GetNode retrieves a node by id.
	GetNode(ctx context.Context, id string) (*model.Node, error)
	// GetNodeByPath retrieves a node by its (module, path) composite key.
	GetNodeByPath(ctx context.Context, module, path string) (*model.Node, error)
	// NodePathExists reports whether (module, path) is occupied.
	NodePathExists(ctx context.Context, module, path string) (bool, error)
	// SaveNode writes back every field of an existing node.
	SaveNode(ctx context.Context, node *model.Node) error
	// ListModuleNodes retrieves every node of a module ordered by path.
	ListModuleNodes(ctx context.Context, module string) ([]*model.Node, error)
	// ListNodesByPathPrefix performs a ranged scan over all nodes of a module
	// whose path starts with prefix, ordered by path.
	ListNodesByPathPrefix(ctx context.Context, module, prefix string) ([]*model.Node, error)
	// DeleteNodes removes node rows by id.
	DeleteNodes(ctx context.Context, ids []string) error
}

type ModuleStore interface {
	// CreateModule persists a new module record.
	CreateModule(ctx context.Context, mod *model.Module) error
	// GetModule retrieves a module by name.
	GetModule(ctx context.Context, name string) (*model.Module, error)
	// ListModules retrieves all module records ordered by name.
	ListModules(ctx context.Context) ([]*model.Module, error)
	// DeleteModule removes a module record by name.
	DeleteModule(ctx context.Context, name string) error
}

type CardStore interface {
	// SaveCard upserts a card row keyed by its anchor id.
	SaveCard(ctx context.Context, card *model.Card) error
	// GetCard retrieves a card by anchor id.
	GetCard(ctx context.Context, id string) (*model.Card, error)
	// ListNodeCards retrieves all cards owned by a node.
	ListNodeCards(ctx context.Context, nodeID string) ([]*model.Card, error)
	// ListModuleCards retrieves all cards of a module.
	ListModuleCards(ctx context.Context, module string) ([]*model.Card, error)
	// ListDueCards retrieves all cards of a module due at or before the cutoff.
	ListDueCards(ctx context.Context, module string, cutoff time.Time) ([]*model.Card, error)
	// DeleteCards removes card rows by anchor id.
	DeleteCards(ctx context.Context, ids []string) error
	// DeleteNodeCards removes all cards owned by any of the given nodes.
	DeleteNodeCards(ctx context.Context, nodeIDs []string) error
	// CardStats aggregates card counts for a module as of now.
	CardStats(ctx context.Context, module string, now time.Time) (*model.CardStats, error)
	// NodeCardStats aggregates card counts for a single node as of now.
	NodeCardStats(ctx context.Context, nodeID string, now time.Time) (*model.CardStats, error)
}

type TaskStore interface {
	// SaveTask upserts a task row keyed by its anchor id.
	SaveTask(ctx context.Context, task *model.Task) error
	// GetTask retrieves a task by anchor id.
	GetTask(ctx context.Context, id string) (*model.Task, error)
	// ListNodeTasks retrieves all tasks owned by a node.
	ListNodeTasks(ctx context.Context, nodeID string) ([]*model.Task, error)
	// ListModuleTasks retrieves all tasks of a module.
	ListModuleTasks(ctx context.Context, module string) ([]*model.Task, error)
	// DeleteTasks removes task rows by anchor id.
	DeleteTasks(ctx context.Context, ids []string) error
	// DeleteNodeTasks removes all tasks owned by any of the given nodes.
	DeleteNodeTasks(ctx context.Context, nodeIDs []string) error
	// TaskStats aggregates task counts for a module as of now.
	TaskStats(ctx context.Context, module string, now time.Time) (*model.TaskStats, error)
}
