package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/emrgen/vault/internal/event"
	"github.com/emrgen/vault/internal/model"
	"github.com/emrgen/vault/internal/provider"
	"github.com/emrgen/vault/internal/store"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// createRetryLimit bounds the " (n)" suffix search when the requested path is
// taken.
const createRetryLimit = 100

// NewNodeService creates a new NodeService.
func NewNodeService(store store.Store, bus *event.Bus, pipeline *provider.Pipeline) *NodeService {
	return &NodeService{
		store:    store,
		bus:      bus,
		pipeline: pipeline,
	}
}

// NodeService owns node CRUD and hierarchy maintenance within a module:
// path uniqueness, cascading path rewrites on move/rename, cascading deletes,
// and the provider pipeline on every content write.
type NodeService struct {
	store    store.Store
	bus      *event.Bus
	pipeline *provider.Pipeline
}

type CreateNodeRequest struct {
	Module       string
	Path         string
	Kind         string
	Content      string
	Meta         map[string]string
	Capabilities []string
}

func (r CreateNodeRequest) Validate() error {
	return validation.Errors{
		"module":  validation.Validate(r.Module, validation.Required),
		"path":    validatePath(r.Path),
		"kind":    validation.Validate(r.Kind, validation.Required, validation.In(model.KindFile, model.KindDirectory)),
		"content": validation.Validate(r.Content, validation.When(r.Kind == model.KindDirectory, validation.Empty)),
	}.Filter()
}

// UpdateNodeRequest carries partial updates; nil fields are left untouched.
// Meta keys are merged into the existing metadata map.
type UpdateNodeRequest struct {
	Content      *string
	Meta         map[string]string
	Capabilities []string
}

// DeleteResult reports the primary removed node and the full cascade.
type DeleteResult struct {
	RemovedID  string
	RemovedIDs []string
}

// Tree is a transient nested view over a module's flat node rows.
type Tree struct {
	Node     *model.Node `json:"node"`
	Children []*Tree     `json:"children,omitempty"`
	// Virtual marks a synthesized root adopting nodes that have no
	// resolvable parent within the retained set.
	Virtual bool `json:"virtual,omitempty"`
}

// Create creates a node at the requested path. If the path is taken the name
// is suffixed " (1)", " (2)", ... until a free path is found; the returned
// node reflects whatever path was actually free. The module root is
// synthesized on demand; any deeper missing parent is an error.
func (s *NodeService) Create(ctx context.Context, req CreateNodeRequest) (*model.Node, error) {
	if err := req.Validate(); err != nil {
		return nil, validationErr(err)
	}

	var created *model.Node
	var parentID string

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		parentPath, name := model.SplitPath(req.Path)

		parent, err := tx.GetNodeByPath(ctx, req.Module, parentPath)
		if errors.Is(err, store.ErrNodeNotFound) {
			if parentPath != "/" {
				return notFoundErr(req.Module, parentPath, "", fmt.Errorf("parent %s: %w", parentPath, err))
			}
			// the module root is the only implicitly created node
			parent = &model.Node{
				ID:     uuid.New().String(),
				Module: req.Module,
				Kind:   model.KindDirectory,
				Path:   "/",
				Name:   "",
			}
			if err := tx.CreateNode(ctx, parent); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		finalName, finalPath, err := resolveFreePath(ctx, tx, req.Module, parent.Path, name)
		if err != nil {
			return err
		}

		node := &model.Node{
			ID:       uuid.New().String(),
			Module:   req.Module,
			Kind:     req.Kind,
			Path:     finalPath,
			Name:     finalName,
			ParentID: &parent.ID,
		}
		if err := node.SetMetaMap(orEmpty(req.Meta)); err != nil {
			return err
		}
		if err := node.SetCapabilityList(req.Capabilities); err != nil {
			return err
		}

		node.Content = req.Content
		if node.Kind == model.KindFile && req.Content != "" {
			content, err := s.pipeline.Run(ctx, tx, node, req.Content)
			if err != nil {
				return err
			}
			node.Content = content
		}

		if err := tx.CreateNode(ctx, node); err != nil {
			return err
		}

		created = node
		parentID = parent.ID
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	logrus.Infof("created node %s at %s in module %s", created.ID, created.Path, created.Module)
	s.bus.Publish(event.Event{
		Type:     event.NodeAdded,
		Module:   created.Module,
		NodeID:   created.ID,
		ParentID: parentID,
		Node:     created,
	})

	return created, nil
}

// Get retrieves a node by id.
func (s *NodeService) Get(ctx context.Context, id string) (*model.Node, error) {
	node, err := s.store.GetNode(ctx, id)
	if errors.Is(err, store.ErrNodeNotFound) {
		return nil, notFoundErr("", "", id, err)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return node, nil
}

// Update merges partial fields into the node. A content update threads the
// provider pipeline inside the same transaction, so the persisted content
// carries the anchors the providers injected.
func (s *NodeService) Update(ctx context.Context, id string, req UpdateNodeRequest) (*model.Node, error) {
	var updated *model.Node

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		node, err := tx.GetNode(ctx, id)
		if errors.Is(err, store.ErrNodeNotFound) {
			return notFoundErr("", "", id, err)
		}
		if err != nil {
			return err
		}

		// only files carry content
		if req.Content != nil && node.IsDirectory() {
			return validationErr(fmt.Errorf("node %s is a directory and cannot carry content", node.Path))
		}

		if req.Meta != nil {
			meta, err := node.MetaMap()
			if err != nil {
				return err
			}
			for k, v := range req.Meta {
				meta[k] = v
			}
			if err := node.SetMetaMap(meta); err != nil {
				return err
			}
		}

		if req.Capabilities != nil {
			if err := node.SetCapabilityList(req.Capabilities); err != nil {
				return err
			}
		}

		if req.Content != nil {
			content, err := s.pipeline.Run(ctx, tx, node, *req.Content)
			if err != nil {
				return err
			}
			node.Content = content
		}

		if err := tx.SaveNode(ctx, node); err != nil {
			return err
		}

		updated = node
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	typ := event.NodeMetaUpdated
	if req.Content != nil {
		typ = event.NodeContentUpdated
	}
	s.bus.Publish(event.Event{
		Type:   typ,
		Module: updated.Module,
		NodeID: updated.ID,
		Node:   updated,
	})

	return updated, nil
}

// Move reparents a node. Moving a directory rewrites the path of every
// descendant in the same transaction.
func (s *NodeService) Move(ctx context.Context, id, newParentID string) (*model.Node, error) {
	var moved *model.Node
	var parentID string
	published := false

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		node, err := tx.GetNode(ctx, id)
		if errors.Is(err, store.ErrNodeNotFound) {
			return notFoundErr("", "", id, err)
		}
		if err != nil {
			return err
		}

		parent, err := tx.GetNode(ctx, newParentID)
		if errors.Is(err, store.ErrNodeNotFound) {
			return notFoundErr("", "", newParentID, err)
		}
		if err != nil {
			return err
		}

		if node.Module != parent.Module {
			return conflictErr(node.Module, node.Path, errors.New("cannot move a node across modules"))
		}
		if !parent.IsDirectory() {
			return validationErr(fmt.Errorf("move target %s is not a directory", parent.Path))
		}
		if node.IsRoot() {
			return validationErr(errors.New("cannot move the module root"))
		}

		newPath := model.JoinPath(parent.Path, node.Name)
		if newPath == node.Path {
			moved = node
			return nil
		}

		if parent.Path == node.Path || strings.HasPrefix(parent.Path, node.Path+"/") {
			return conflictErr(node.Module, node.Path, errors.New("cannot move a directory under its own subtree"))
		}

		exists, err := tx.NodePathExists(ctx, node.Module, newPath)
		if err != nil {
			return err
		}
		if exists {
			return conflictErr(node.Module, newPath, errors.New("target path is already occupied"))
		}

		oldPath := node.Path
		node.Path = newPath
		node.ParentID = &parent.ID
		if err := tx.SaveNode(ctx, node); err != nil {
			return err
		}

		if node.IsDirectory() {
			if err := rewriteDescendantPaths(ctx, tx, node.Module, oldPath, newPath); err != nil {
				return err
			}
		}

		moved = node
		parentID = parent.ID
		published = true
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	if published {
		s.bus.Publish(event.Event{
			Type:     event.NodeMoved,
			Module:   moved.Module,
			NodeID:   moved.ID,
			ParentID: parentID,
			Node:     moved,
		})
	}

	return moved, nil
}

// Rename changes the last path segment of a node, rewriting descendant paths
// when the node is a directory.
func (s *NodeService) Rename(ctx context.Context, id, newName string) (*model.Node, error) {
	if err := validation.Validate(newName, validation.Required,
		validation.By(noSlash)); err != nil {
		return nil, validationErr(fmt.Errorf("name: %w", err))
	}

	var renamed *model.Node
	published := false

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		node, err := tx.GetNode(ctx, id)
		if errors.Is(err, store.ErrNodeNotFound) {
			return notFoundErr("", "", id, err)
		}
		if err != nil {
			return err
		}

		if node.IsRoot() {
			return validationErr(errors.New("cannot rename the module root"))
		}

		parentPath, _ := model.SplitPath(node.Path)
		newPath := model.JoinPath(parentPath, newName)
		if newPath == node.Path {
			renamed = node
			return nil
		}

		exists, err := tx.NodePathExists(ctx, node.Module, newPath)
		if err != nil {
			return err
		}
		if exists {
			return conflictErr(node.Module, newPath, errors.New("target path is already occupied"))
		}

		oldPath := node.Path
		node.Path = newPath
		node.Name = newName
		if err := tx.SaveNode(ctx, node); err != nil {
			return err
		}

		if node.IsDirectory() {
			if err := rewriteDescendantPaths(ctx, tx, node.Module, oldPath, newPath); err != nil {
				return err
			}
		}

		renamed = node
		published = true
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	if published {
		s.bus.Publish(event.Event{
			Type:   event.NodeRenamed,
			Module: renamed.Module,
			NodeID: renamed.ID,
			Node:   renamed,
		})
	}

	return renamed, nil
}

// Delete removes a node, every descendant, and all derived entities owned by
// any of them, as one atomic operation. Deleting an absent node is a no-op
// returning an empty removal list.
func (s *NodeService) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	result := &DeleteResult{}
	module := ""

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		node, err := tx.GetNode(ctx, id)
		if errors.Is(err, store.ErrNodeNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		ids := []string{node.ID}
		if node.IsDirectory() {
			prefix := node.Path + "/"
			if node.IsRoot() {
				prefix = "/"
			}
			descendants, err := tx.ListNodesByPathPrefix(ctx, node.Module, prefix)
			if err != nil {
				return err
			}
			for _, d := range descendants {
				if d.ID != node.ID {
					ids = append(ids, d.ID)
				}
			}
		}

		if err := s.pipeline.Cleanup(ctx, tx, ids); err != nil {
			return err
		}
		if err := tx.DeleteNodes(ctx, ids); err != nil {
			return err
		}

		module = node.Module
		result.RemovedID = node.ID
		result.RemovedIDs = ids
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	if result.RemovedID != "" {
		logrus.Infof("deleted node %s and %d descendants from module %s",
			result.RemovedID, len(result.RemovedIDs)-1, module)
		s.bus.Publish(event.Event{
			Type:       event.NodeRemoved,
			Module:     module,
			NodeID:     result.RemovedID,
			RemovedIDs: result.RemovedIDs,
		})
	}

	return result, nil
}

// GetTree reconstructs the module's nested tree. With a filter, only matching
// nodes plus the ancestors reachable through parent links are retained; any
// retained node whose parent chain breaks is adopted by a synthesized virtual
// root so callers always receive a single connected tree. Returns nil when
// the module is empty or nothing matches.
func (s *NodeService) GetTree(ctx context.Context, module string, filter func(*model.Node) bool) (*Tree, error) {
	nodes, err := s.store.ListModuleNodes(ctx, module)
	if err != nil {
		return nil, wrapErr(err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	byID := make(map[string]*model.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	retained := make(map[string]*model.Node, len(nodes))
	if filter == nil {
		retained = byID
	} else {
		for _, n := range nodes {
			if !filter(n) {
				continue
			}
			retained[n.ID] = n
			// ancestor closure along parent links
			cur := n
			for cur.ParentID != nil {
				parent, ok := byID[*cur.ParentID]
				if !ok {
					break
				}
				if _, ok := retained[parent.ID]; ok {
					break
				}
				retained[parent.ID] = parent
				cur = parent
			}
		}
	}
	if len(retained) == 0 {
		return nil, nil
	}

	trees := make(map[string]*Tree, len(retained))
	for _, n := range retained {
		trees[n.ID] = &Tree{Node: n}
	}

	// nodes arrive path-ordered, so children attach in path order
	var roots []*Tree
	for _, n := range nodes {
		t, ok := trees[n.ID]
		if !ok {
			continue
		}
		if n.ParentID != nil {
			if parent, ok := trees[*n.ParentID]; ok {
				parent.Children = append(parent.Children, t)
				continue
			}
		}
		roots = append(roots, t)
	}

	if len(roots) == 1 && roots[0].Node.IsRoot() {
		return roots[0], nil
	}

	return &Tree{
		Node: &model.Node{
			Module: module,
			Kind:   model.KindDirectory,
			Path:   "/",
		},
		Children: roots,
		Virtual:  true,
	}, nil
}

// Copy duplicates a node (and, for directories, its whole subtree) under a
// new parent. File content is re-anchored by the providers, so the copy owns
// fresh derived entities with initial scheduling state.
func (s *NodeService) Copy(ctx context.Context, id, newParentID string) (*model.Node, error) {
	var copied *model.Node
	var parentID string

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		node, err := tx.GetNode(ctx, id)
		if errors.Is(err, store.ErrNodeNotFound) {
			return notFoundErr("", "", id, err)
		}
		if err != nil {
			return err
		}

		parent, err := tx.GetNode(ctx, newParentID)
		if errors.Is(err, store.ErrNodeNotFound) {
			return notFoundErr("", "", newParentID, err)
		}
		if err != nil {
			return err
		}

		if !parent.IsDirectory() {
			return validationErr(fmt.Errorf("copy target %s is not a directory", parent.Path))
		}
		if node.IsRoot() {
			return validationErr(errors.New("cannot copy the module root"))
		}
		if node.Module == parent.Module &&
			(parent.Path == node.Path || strings.HasPrefix(parent.Path, node.Path+"/")) {
			return conflictErr(node.Module, node.Path, errors.New("cannot copy a directory under its own subtree"))
		}

		name, newPath, err := resolveFreePath(ctx, tx, parent.Module, parent.Path, node.Name)
		if err != nil {
			return err
		}

		subtree := []*model.Node{node}
		if node.IsDirectory() {
			descendants, err := tx.ListNodesByPathPrefix(ctx, node.Module, node.Path+"/")
			if err != nil {
				return err
			}
			subtree = append(subtree, descendants...)
		}

		idMap := make(map[string]string, len(subtree)+1)
		if node.ParentID != nil {
			idMap[*node.ParentID] = parent.ID
		}
		for _, src := range subtree {
			dst := &model.Node{
				ID:           uuid.New().String(),
				Module:       parent.Module,
				Kind:         src.Kind,
				Meta:         src.Meta,
				Capabilities: src.Capabilities,
			}
			idMap[src.ID] = dst.ID

			if src.ID == node.ID {
				dst.Path = newPath
				dst.Name = name
			} else {
				dst.Path = newPath + strings.TrimPrefix(src.Path, node.Path)
				dst.Name = src.Name
			}
			if src.ParentID != nil {
				if pid, ok := idMap[*src.ParentID]; ok {
					dst.ParentID = &pid
				}
			}

			dst.Content = src.Content
			if dst.Kind == model.KindFile && src.Content != "" {
				content, err := s.pipeline.Copy(ctx, tx, src, dst, src.Content)
				if err != nil {
					return err
				}
				dst.Content = content
			}

			if err := tx.CreateNode(ctx, dst); err != nil {
				return err
			}
			if src.ID == node.ID {
				copied = dst
			}
		}

		parentID = parent.ID
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	s.bus.Publish(event.Event{
		Type:     event.NodeAdded,
		Module:   copied.Module,
		NodeID:   copied.ID,
		ParentID: parentID,
		Node:     copied,
	})

	return copied, nil
}

// rewriteDescendantPaths substitutes the moved directory's old path prefix in
// every descendant row. Runs inside the caller's transaction.
func rewriteDescendantPaths(ctx context.Context, tx store.Store, module, oldPath, newPath string) error {
	descendants, err := tx.ListNodesByPathPrefix(ctx, module, oldPath+"/")
	if err != nil {
		return err
	}

	for _, d := range descendants {
		d.Path = newPath + strings.TrimPrefix(d.Path, oldPath)
		if err := tx.SaveNode(ctx, d); err != nil {
			return err
		}
	}

	logrus.Debugf("rewrote %d descendant paths from %s to %s", len(descendants), oldPath, newPath)
	return nil
}

// resolveFreePath finds a free path under parentPath, suffixing the name
// " (1)", " (2)", ... before the extension when the literal path is taken.
func resolveFreePath(ctx context.Context, tx store.Store, module, parentPath, name string) (string, string, error) {
	candidate := name
	for i := 0; ; i++ {
		if i > createRetryLimit {
			return "", "", conflictErr(module, model.JoinPath(parentPath, name),
				fmt.Errorf("no free path after %d attempts", createRetryLimit))
		}
		if i > 0 {
			candidate = suffixName(name, i)
		}

		p := model.JoinPath(parentPath, candidate)
		exists, err := tx.NodePathExists(ctx, module, p)
		if err != nil {
			return "", "", err
		}
		if !exists {
			return candidate, p, nil
		}
	}
}

// suffixName inserts " (n)" before the file extension: "a.md" -> "a (1).md".
func suffixName(name string, n int) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}

func noSlash(value interface{}) error {
	s, _ := value.(string)
	if strings.Contains(s, "/") {
		return errors.New("must not contain '/'")
	}
	return nil
}

// validatePath checks the shape of an absolute node path. The root itself is
// not creatable through the node API; it is owned by Mount.
func validatePath(p string) error {
	if err := validation.Validate(p, validation.Required); err != nil {
		return err
	}
	if !strings.HasPrefix(p, "/") {
		return errors.New("must be absolute")
	}
	if p == "/" {
		return errors.New("the module root is created by mount")
	}
	if strings.HasSuffix(p, "/") {
		return errors.New("must not end with '/'")
	}
	for _, seg := range strings.Split(p[1:], "/") {
		if seg == "" {
			return errors.New("must not contain empty segments")
		}
	}
	return nil
}

func orEmpty(meta map[string]string) map[string]string {
	if meta == nil {
		return map[string]string{}
	}
	return meta
}
