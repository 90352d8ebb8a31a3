package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/semver"
	"github.com/emrgen/vault/internal/compress"
	"github.com/emrgen/vault/internal/event"
	"github.com/emrgen/vault/internal/model"
	"github.com/emrgen/vault/internal/provider"
	"github.com/emrgen/vault/internal/store"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// exportFormatVersion tags export envelopes; import accepts any 1.x envelope.
const exportFormatVersion = "1.0.0"

var exportFormatConstraint = func() *semver.Constraints {
	c, err := semver.NewConstraint("^1.0.0")
	if err != nil {
		panic(err)
	}
	return c
}()

// NewModuleService creates a new ModuleService.
func NewModuleService(store store.Store, bus *event.Bus, pipeline *provider.Pipeline) *ModuleService {
	return &ModuleService{
		store:    store,
		bus:      bus,
		pipeline: pipeline,
	}
}

// ModuleService is the module registry: it mounts and unmounts the named
// namespaces that isolate node trees, and serializes whole modules for
// backup and duplication.
type ModuleService struct {
	store    store.Store
	bus      *event.Bus
	pipeline *provider.Pipeline
}

// exportEnvelope is the serialized form of a whole module.
type exportEnvelope struct {
	FormatVersion string        `json:"format_version"`
	Module        string        `json:"module"`
	Description   string        `json:"description"`
	Nodes         []*model.Node `json:"nodes"`
	Cards         []*model.Card `json:"cards"`
	Tasks         []*model.Task `json:"tasks"`
}

// Mount creates a module and its root directory node. A root synthesized by
// an earlier create in the unmounted namespace is adopted rather than
// recreated.
func (s *ModuleService) Mount(ctx context.Context, name, description string) (*model.Module, error) {
	if err := validation.Validate(name, validation.Required, validation.By(noSlash)); err != nil {
		return nil, validationErr(fmt.Errorf("module name: %w", err))
	}

	var mod *model.Module
	var root *model.Node

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		_, err := tx.GetModule(ctx, name)
		if err == nil {
			return conflictErr(name, "", errors.New("module already exists"))
		}
		if !errors.Is(err, store.ErrModuleNotFound) {
			return err
		}

		root, err = tx.GetNodeByPath(ctx, name, "/")
		if errors.Is(err, store.ErrNodeNotFound) {
			root = &model.Node{
				ID:     uuid.New().String(),
				Module: name,
				Kind:   model.KindDirectory,
				Path:   "/",
				Name:   "",
			}
			if err := tx.CreateNode(ctx, root); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		mod = &model.Module{
			Name:        name,
			RootNodeID:  root.ID,
			Description: description,
		}
		return tx.CreateModule(ctx, mod)
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	logrus.Infof("mounted module %s", name)
	s.bus.Publish(event.Event{
		Type:   event.NodeAdded,
		Module: name,
		NodeID: root.ID,
		Node:   root,
	})

	return mod, nil
}

// Unmount removes the module record and cascades to every node and derived
// entity of the module.
func (s *ModuleService) Unmount(ctx context.Context, name string) error {
	var removedIDs []string
	rootID := ""

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		mod, err := tx.GetModule(ctx, name)
		if errors.Is(err, store.ErrModuleNotFound) {
			return notFoundErr(name, "", "", err)
		}
		if err != nil {
			return err
		}
		rootID = mod.RootNodeID

		nodes, err := tx.ListModuleNodes(ctx, name)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			removedIDs = append(removedIDs, n.ID)
		}

		if err := s.pipeline.Cleanup(ctx, tx, removedIDs); err != nil {
			return err
		}
		if err := tx.DeleteNodes(ctx, removedIDs); err != nil {
			return err
		}

		return tx.DeleteModule(ctx, name)
	})
	if err != nil {
		return wrapErr(err)
	}

	logrus.Infof("unmounted module %s, removed %d nodes", name, len(removedIDs))
	s.bus.Publish(event.Event{
		Type:       event.NodeRemoved,
		Module:     name,
		NodeID:     rootID,
		RemovedIDs: removedIDs,
	})

	return nil
}

// List retrieves all mounted modules.
func (s *ModuleService) List(ctx context.Context) ([]*model.Module, error) {
	mods, err := s.store.ListModules(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}
	return mods, nil
}

// Export serializes a module's whole tree, content, and derived entities into
// a compressed envelope. The first byte of the output records the codec.
func (s *ModuleService) Export(ctx context.Context, name string, codec compress.Compress) ([]byte, error) {
	env := &exportEnvelope{
		FormatVersion: exportFormatVersion,
		Module:        name,
	}

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		mod, err := tx.GetModule(ctx, name)
		if errors.Is(err, store.ErrModuleNotFound) {
			return notFoundErr(name, "", "", err)
		}
		if err != nil {
			return err
		}
		env.Description = mod.Description

		if env.Nodes, err = tx.ListModuleNodes(ctx, name); err != nil {
			return err
		}
		if env.Cards, err = tx.ListModuleCards(ctx, name); err != nil {
			return err
		}
		env.Tasks, err = tx.ListModuleTasks(ctx, name)
		return err
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, wrapErr(err)
	}
	encoded, err := codec.Encode(data)
	if err != nil {
		return nil, wrapErr(err)
	}

	out := make([]byte, 0, len(encoded)+1)
	out = append(out, compress.CodecID(codec))
	return append(out, encoded...), nil
}

// Import recreates a module from an export envelope. The target module name
// must not collide with a mounted module.
func (s *ModuleService) Import(ctx context.Context, data []byte) (*model.Module, error) {
	if len(data) < 1 {
		return nil, validationErr(errors.New("empty import payload"))
	}

	codec, err := compress.FromCodec(data[0])
	if err != nil {
		return nil, validationErr(err)
	}
	decoded, err := codec.Decode(data[1:])
	if err != nil {
		return nil, validationErr(fmt.Errorf("corrupt import payload: %w", err))
	}

	var env exportEnvelope
	if err := json.Unmarshal(decoded, &env); err != nil {
		return nil, validationErr(fmt.Errorf("corrupt import payload: %w", err))
	}

	version, err := semver.NewVersion(env.FormatVersion)
	if err != nil {
		return nil, validationErr(fmt.Errorf("export format version %q: %w", env.FormatVersion, err))
	}
	if !exportFormatConstraint.Check(version) {
		return nil, validationErr(fmt.Errorf("unsupported export format version %s", env.FormatVersion))
	}

	var mod *model.Module
	var root *model.Node

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		_, err := tx.GetModule(ctx, env.Module)
		if err == nil {
			return conflictErr(env.Module, "", errors.New("module already exists"))
		}
		if !errors.Is(err, store.ErrModuleNotFound) {
			return err
		}

		for _, n := range env.Nodes {
			if n.IsRoot() {
				root = n
			}
			if err := tx.CreateNode(ctx, n); err != nil {
				return err
			}
		}
		if root == nil {
			return validationErr(errors.New("import payload has no root node"))
		}

		for _, c := range env.Cards {
			if err := tx.SaveCard(ctx, c); err != nil {
				return err
			}
		}
		for _, t := range env.Tasks {
			if err := tx.SaveTask(ctx, t); err != nil {
				return err
			}
		}

		mod = &model.Module{
			Name:        env.Module,
			RootNodeID:  root.ID,
			Description: env.Description,
		}
		return tx.CreateModule(ctx, mod)
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	logrus.Infof("imported module %s with %d nodes", mod.Name, len(env.Nodes))
	s.bus.Publish(event.Event{
		Type:   event.NodeAdded,
		Module: mod.Name,
		NodeID: root.ID,
		Node:   root,
	})

	return mod, nil
}
