package vault

import (
	"github.com/emrgen/vault/internal/cache"
	"github.com/emrgen/vault/internal/event"
	"github.com/emrgen/vault/internal/provider"
	"github.com/emrgen/vault/internal/service"
	"github.com/emrgen/vault/internal/store"
	"gorm.io/gorm"
)

// Vault wires the store, the event bus, the provider pipeline, and the
// services into one handle. Collaborating subsystems consume the store
// through this handle; nothing in the package tree is ambient global state.
type Vault struct {
	store    store.Store
	bus      *event.Bus
	pipeline *provider.Pipeline
	nodes    *service.NodeService
	modules  *service.ModuleService
	cards    *service.CardService
	tasks    *service.TaskService
}

// Open builds a Vault over the given database with the card and task
// providers registered, in that order, and an in-memory stats cache.
func Open(db *gorm.DB) *Vault {
	return OpenWithCache(db, cache.NewMemory())
}

// OpenWithCache builds a Vault with an explicit stats cache backend.
func OpenWithCache(db *gorm.DB, kv cache.KV) *Vault {
	st := store.NewGormStore(db)
	bus := event.NewBus()
	pipeline := provider.NewPipeline(
		provider.NewCardProvider(),
		provider.NewTaskProvider(),
	)

	return &Vault{
		store:    st,
		bus:      bus,
		pipeline: pipeline,
		nodes:    service.NewNodeService(st, bus, pipeline),
		modules:  service.NewModuleService(st, bus, pipeline),
		cards:    service.NewCardService(st, kv, bus),
		tasks:    service.NewTaskService(st, kv, bus),
	}
}

// Migrate creates or updates the backing tables.
func (v *Vault) Migrate() error {
	return v.store.Migrate()
}

// Nodes is the node CRUD and hierarchy API.
func (v *Vault) Nodes() *service.NodeService {
	return v.nodes
}

// Modules is the module registry API.
func (v *Vault) Modules() *service.ModuleService {
	return v.modules
}

// Cards is the card provider's read and grading API.
func (v *Vault) Cards() *service.CardService {
	return v.cards
}

// Tasks is the task provider's read and completion API.
func (v *Vault) Tasks() *service.TaskService {
	return v.tasks
}

// Bus is the lifecycle event bus; subscribers see committed changes only.
func (v *Vault) Bus() *event.Bus {
	return v.bus
}

// Store exposes the underlying store, mainly for jobs.
func (v *Vault) Store() store.Store {
	return v.store
}
