package jobs

import (
	"context"

	"github.com/emrgen/vault/internal/service"
	"github.com/emrgen/vault/internal/store"
	"github.com/sirupsen/logrus"
)

// DueScan periodically warms the per-module stats caches and surfaces due
// counts in the logs.
type DueScan struct {
	store    store.Store
	cards    *service.CardService
	tasks    *service.TaskService
	schedule string
}

func NewDueScan(schedule string, st store.Store, cards *service.CardService, tasks *service.TaskService) *DueScan {
	return &DueScan{
		store:    st,
		cards:    cards,
		tasks:    tasks,
		schedule: schedule,
	}
}

func (d *DueScan) Schedule() string {
	return d.schedule
}

func (d *DueScan) Run() {
	ctx := context.Background()

	modules, err := d.store.ListModules(ctx)
	if err != nil {
		logrus.Errorf("due scan: failed to list modules: %v", err)
		return
	}

	for _, mod := range modules {
		cardStats, err := d.cards.Stats(ctx, mod.Name)
		if err != nil {
			logrus.Errorf("due scan: card stats for module %s: %v", mod.Name, err)
			continue
		}
		taskStats, err := d.tasks.Stats(ctx, mod.Name)
		if err != nil {
			logrus.Errorf("due scan: task stats for module %s: %v", mod.Name, err)
			continue
		}

		if cardStats.Due > 0 || taskStats.Overdue > 0 {
			logrus.Infof("module %s: %d cards due, %d tasks overdue", mod.Name, cardStats.Due, taskStats.Overdue)
		}
	}
}
