package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/emrgen/vault/internal/cache"
	"github.com/emrgen/vault/internal/event"
	"github.com/emrgen/vault/internal/model"
	"github.com/emrgen/vault/internal/store"
	"github.com/sirupsen/logrus"
)

const taskStatsTTL = time.Minute

func taskStatsKey(module string) string {
	return "vault:task:stats:" + module
}

// NewTaskService creates a new TaskService.
func NewTaskService(st store.Store, kv cache.KV, bus *event.Bus) *TaskService {
	s := &TaskService{
		store: st,
		kv:    kv,
		now:   time.Now,
	}

	invalidate := func(e event.Event) {
		if err := kv.Delete(context.Background(), taskStatsKey(e.Module)); err != nil {
			logrus.Errorf("failed to invalidate task stats for module %s: %v", e.Module, err)
		}
	}
	bus.Subscribe(event.NodeAdded, invalidate)
	bus.Subscribe(event.NodeContentUpdated, invalidate)
	bus.Subscribe(event.NodeRemoved, invalidate)

	return s
}

// TaskService exposes the task provider's read side and single-task state
// mutations that never touch node content.
type TaskService struct {
	store store.Store
	kv    cache.KV
	now   func() time.Time
}

// Stats aggregates task counts for a module.
func (s *TaskService) Stats(ctx context.Context, module string) (*model.TaskStats, error) {
	key := taskStatsKey(module)
	if data, ok, err := s.kv.Get(ctx, key); err == nil && ok {
		stats := &model.TaskStats{}
		if err := json.Unmarshal(data, stats); err == nil {
			return stats, nil
		}
	}

	stats, err := s.store.TaskStats(ctx, module, s.now())
	if err != nil {
		return nil, wrapErr(err)
	}

	if data, err := json.Marshal(stats); err == nil {
		if err := s.kv.Set(ctx, key, data, taskStatsTTL); err != nil {
			logrus.Errorf("failed to cache task stats for module %s: %v", module, err)
		}
	}

	return stats, nil
}

// List retrieves all tasks owned by a node.
func (s *TaskService) List(ctx context.Context, nodeID string) ([]*model.Task, error) {
	tasks, err := s.store.ListNodeTasks(ctx, nodeID)
	if err != nil {
		return nil, wrapErr(err)
	}
	return tasks, nil
}

// SetDone flips a task's completion flag without touching node content.
func (s *TaskService) SetDone(ctx context.Context, id string, done bool) (*model.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) {
		return nil, notFoundErr("", "", id, err)
	}
	if err != nil {
		return nil, wrapErr(err)
	}

	task.Done = done
	if err := s.store.SaveTask(ctx, task); err != nil {
		return nil, wrapErr(err)
	}

	if err := s.kv.Delete(ctx, taskStatsKey(task.Module)); err != nil {
		logrus.Errorf("failed to invalidate task stats for module %s: %v", task.Module, err)
	}

	return task, nil
}
