package service

import (
	"context"
	"errors"
	"testing"

	"github.com/emrgen/vault/internal/event"
	"github.com/emrgen/vault/internal/model"
	"github.com/emrgen/vault/internal/provider"
	"github.com/emrgen/vault/internal/store"
	"github.com/emrgen/vault/internal/tester"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServices() (*NodeService, *ModuleService, store.Store, *event.Bus) {
	tester.RemoveDBFile()
	tester.Setup()

	st := store.NewGormStore(tester.TestDB())
	bus := event.NewBus()
	pipeline := provider.NewPipeline(provider.NewCardProvider(), provider.NewTaskProvider())

	return NewNodeService(st, bus, pipeline), NewModuleService(st, bus, pipeline), st, bus
}

func TestNodeService_Create(t *testing.T) {
	nodes, modules, _, _ := newTestServices()
	ctx := context.TODO()

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)

	dir, err := nodes.Create(ctx, CreateNodeRequest{
		Module: "notes",
		Path:   "/inbox",
		Kind:   model.KindDirectory,
	})
	require.NoError(t, err)
	assert.Equal(t, "/inbox", dir.Path)
	assert.Equal(t, "inbox", dir.Name)
	require.NotNil(t, dir.ParentID)

	file, err := nodes.Create(ctx, CreateNodeRequest{
		Module:  "notes",
		Path:    "/inbox/today.md",
		Kind:    model.KindFile,
		Content: "plain text",
		Meta:    map[string]string{"tag": "daily"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/inbox/today.md", file.Path)
	assert.Equal(t, "plain text", file.Content)
	require.NotNil(t, file.ParentID)
	assert.Equal(t, dir.ID, *file.ParentID)

	meta, err := file.MetaMap()
	require.NoError(t, err)
	assert.Equal(t, "daily", meta["tag"])

	got, err := nodes.Get(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, file.Path, got.Path)
}

func TestNodeService_Create_SynthesizesRoot(t *testing.T) {
	nodes, _, st, _ := newTestServices()
	ctx := context.TODO()

	// a top-level create in an unmounted namespace still gets a root parent
	node, err := nodes.Create(ctx, CreateNodeRequest{
		Module: "scratch",
		Path:   "/a.md",
		Kind:   model.KindFile,
	})
	require.NoError(t, err)
	require.NotNil(t, node.ParentID)

	root, err := st.GetNodeByPath(ctx, "scratch", "/")
	require.NoError(t, err)
	assert.Equal(t, root.ID, *node.ParentID)
	assert.True(t, root.IsDirectory())
}

func TestNodeService_Create_MissingParent(t *testing.T) {
	nodes, modules, _, _ := newTestServices()
	ctx := context.TODO()

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)

	_, err = nodes.Create(ctx, CreateNodeRequest{
		Module: "notes",
		Path:   "/missing/a.md",
		Kind:   model.KindFile,
	})
	assert.True(t, IsNotFound(err))
}

func TestNodeService_Create_InvalidRequest(t *testing.T) {
	nodes, _, _, _ := newTestServices()
	ctx := context.TODO()

	tests := []struct {
		name string
		req  CreateNodeRequest
	}{
		{name: "empty module", req: CreateNodeRequest{Path: "/a", Kind: model.KindFile}},
		{name: "relative path", req: CreateNodeRequest{Module: "m", Path: "a", Kind: model.KindFile}},
		{name: "root path", req: CreateNodeRequest{Module: "m", Path: "/", Kind: model.KindDirectory}},
		{name: "trailing slash", req: CreateNodeRequest{Module: "m", Path: "/a/", Kind: model.KindDirectory}},
		{name: "empty segment", req: CreateNodeRequest{Module: "m", Path: "/a//b", Kind: model.KindFile}},
		{name: "unknown kind", req: CreateNodeRequest{Module: "m", Path: "/a", Kind: "link"}},
		{name: "directory with content", req: CreateNodeRequest{Module: "m", Path: "/a", Kind: model.KindDirectory, Content: "text"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := nodes.Create(ctx, tt.req)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestNodeService_Create_ConflictSuffix(t *testing.T) {
	nodes, modules, _, _ := newTestServices()
	ctx := context.TODO()

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)

	first, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/a.md", Kind: model.KindFile})
	require.NoError(t, err)
	assert.Equal(t, "/a.md", first.Path)

	second, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/a.md", Kind: model.KindFile})
	require.NoError(t, err)
	assert.Equal(t, "/a (1).md", second.Path)
	assert.Equal(t, "a (1).md", second.Name)

	third, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/a.md", Kind: model.KindFile})
	require.NoError(t, err)
	assert.Equal(t, "/a (2).md", third.Path)

	// no extension: the suffix lands at the end of the name
	_, err = nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox", Kind: model.KindDirectory})
	require.NoError(t, err)
	dup, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox", Kind: model.KindDirectory})
	require.NoError(t, err)
	assert.Equal(t, "/inbox (1)", dup.Path)
}

func TestNodeService_Update(t *testing.T) {
	nodes, modules, _, _ := newTestServices()
	ctx := context.TODO()

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)

	node, err := nodes.Create(ctx, CreateNodeRequest{
		Module: "notes",
		Path:   "/a.md",
		Kind:   model.KindFile,
		Meta:   map[string]string{"tag": "daily", "color": "red"},
	})
	require.NoError(t, err)

	content := "updated body"
	updated, err := nodes.Update(ctx, node.ID, UpdateNodeRequest{
		Content: &content,
		Meta:    map[string]string{"color": "blue", "pinned": "true"},
	})
	require.NoError(t, err)
	assert.Equal(t, "updated body", updated.Content)

	meta, err := updated.MetaMap()
	require.NoError(t, err)
	// meta keys merge, untouched keys survive
	assert.Equal(t, "daily", meta["tag"])
	assert.Equal(t, "blue", meta["color"])
	assert.Equal(t, "true", meta["pinned"])

	_, err = nodes.Update(ctx, uuid.New().String(), UpdateNodeRequest{})
	assert.True(t, IsNotFound(err))

	// only files carry content
	dir, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/dir", Kind: model.KindDirectory})
	require.NoError(t, err)
	_, err = nodes.Update(ctx, dir.ID, UpdateNodeRequest{Content: &content})
	assert.True(t, IsValidation(err))

	got, err := nodes.Get(ctx, dir.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Content)
}

func TestNodeService_Move(t *testing.T) {
	nodes, modules, st, _ := newTestServices()
	ctx := context.TODO()

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)

	dir, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox", Kind: model.KindDirectory})
	require.NoError(t, err)
	_, err = nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox/a.md", Kind: model.KindFile})
	require.NoError(t, err)
	sub, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox/sub", Kind: model.KindDirectory})
	require.NoError(t, err)
	_, err = nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox/sub/b.md", Kind: model.KindFile})
	require.NoError(t, err)
	archive, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/archive", Kind: model.KindDirectory})
	require.NoError(t, err)

	moved, err := nodes.Move(ctx, dir.ID, archive.ID)
	require.NoError(t, err)
	assert.Equal(t, "/archive/inbox", moved.Path)
	require.NotNil(t, moved.ParentID)
	assert.Equal(t, archive.ID, *moved.ParentID)

	// every descendant path is rewritten in the same transaction
	for _, path := range []string{"/archive/inbox/a.md", "/archive/inbox/sub", "/archive/inbox/sub/b.md"} {
		_, err := st.GetNodeByPath(ctx, "notes", path)
		assert.NoError(t, err, path)
	}
	_, err = st.GetNodeByPath(ctx, "notes", "/inbox")
	assert.ErrorIs(t, err, store.ErrNodeNotFound)

	// a directory cannot be moved under its own subtree
	_, err = nodes.Move(ctx, moved.ID, sub.ID)
	assert.True(t, IsConflict(err))
}

func TestNodeService_Move_Conflicts(t *testing.T) {
	nodes, modules, _, _ := newTestServices()
	ctx := context.TODO()

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)
	_, err = modules.Mount(ctx, "work", "")
	require.NoError(t, err)

	file, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/a.md", Kind: model.KindFile})
	require.NoError(t, err)
	other, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/b.md", Kind: model.KindFile})
	require.NoError(t, err)
	dir, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/dir", Kind: model.KindDirectory})
	require.NoError(t, err)
	workDir, err := nodes.Create(ctx, CreateNodeRequest{Module: "work", Path: "/dir", Kind: model.KindDirectory})
	require.NoError(t, err)

	// modules are isolated namespaces
	_, err = nodes.Move(ctx, file.ID, workDir.ID)
	assert.True(t, IsConflict(err))

	// a file is not a valid target
	_, err = nodes.Move(ctx, file.ID, other.ID)
	assert.True(t, IsValidation(err))

	// occupied target path
	_, err = nodes.Move(ctx, file.ID, dir.ID)
	require.NoError(t, err)
	occupied, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/a.md", Kind: model.KindFile})
	require.NoError(t, err)
	_, err = nodes.Move(ctx, occupied.ID, dir.ID)
	assert.True(t, IsConflict(err))
}

func TestNodeService_Rename(t *testing.T) {
	nodes, modules, st, _ := newTestServices()
	ctx := context.TODO()

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)

	dir, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox", Kind: model.KindDirectory})
	require.NoError(t, err)
	_, err = nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox/a.md", Kind: model.KindFile})
	require.NoError(t, err)

	renamed, err := nodes.Rename(ctx, dir.ID, "outbox")
	require.NoError(t, err)
	assert.Equal(t, "/outbox", renamed.Path)
	assert.Equal(t, "outbox", renamed.Name)

	_, err = st.GetNodeByPath(ctx, "notes", "/outbox/a.md")
	assert.NoError(t, err)

	_, err = nodes.Rename(ctx, dir.ID, "with/slash")
	assert.True(t, IsValidation(err))

	_, err = nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/taken", Kind: model.KindDirectory})
	require.NoError(t, err)
	_, err = nodes.Rename(ctx, dir.ID, "taken")
	assert.True(t, IsConflict(err))
}

func TestNodeService_Delete_Cascades(t *testing.T) {
	nodes, modules, st, _ := newTestServices()
	ctx := context.TODO()

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)

	dir, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox", Kind: model.KindDirectory})
	require.NoError(t, err)
	_, err = nodes.Create(ctx, CreateNodeRequest{
		Module:  "notes",
		Path:    "/inbox/a.md",
		Kind:    model.KindFile,
		Content: "{{sun::star}}\n- [ ] water plants",
	})
	require.NoError(t, err)
	_, err = nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox/sub", Kind: model.KindDirectory})
	require.NoError(t, err)
	_, err = nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox/sub/b.md", Kind: model.KindFile})
	require.NoError(t, err)
	kept, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/keep.md", Kind: model.KindFile})
	require.NoError(t, err)

	result, err := nodes.Delete(ctx, dir.ID)
	require.NoError(t, err)
	assert.Equal(t, dir.ID, result.RemovedID)
	assert.Len(t, result.RemovedIDs, 4)

	for _, path := range []string{"/inbox", "/inbox/a.md", "/inbox/sub", "/inbox/sub/b.md"} {
		_, err := st.GetNodeByPath(ctx, "notes", path)
		assert.ErrorIs(t, err, store.ErrNodeNotFound, path)
	}
	_, err = nodes.Get(ctx, kept.ID)
	assert.NoError(t, err)

	// derived entities go with their nodes
	cards, err := st.ListModuleCards(ctx, "notes")
	require.NoError(t, err)
	assert.Empty(t, cards)
	tasks, err := st.ListModuleTasks(ctx, "notes")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestNodeService_Delete_AbsentIsNoop(t *testing.T) {
	nodes, _, _, bus := newTestServices()
	ctx := context.TODO()

	published := 0
	bus.Subscribe(event.NodeRemoved, func(e event.Event) { published++ })

	result, err := nodes.Delete(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Empty(t, result.RemovedID)
	assert.Empty(t, result.RemovedIDs)
	assert.Zero(t, published)
}

func TestNodeService_Delete_SiblingPrefixSurvives(t *testing.T) {
	nodes, modules, _, _ := newTestServices()
	ctx := context.TODO()

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)

	dir, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/doc", Kind: model.KindDirectory})
	require.NoError(t, err)
	sibling, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/docs", Kind: model.KindDirectory})
	require.NoError(t, err)

	// "/doc" must not cascade into "/docs"
	result, err := nodes.Delete(ctx, dir.ID)
	require.NoError(t, err)
	assert.Len(t, result.RemovedIDs, 1)

	_, err = nodes.Get(ctx, sibling.ID)
	assert.NoError(t, err)
}

func TestNodeService_GetTree(t *testing.T) {
	nodes, modules, _, _ := newTestServices()
	ctx := context.TODO()

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)
	_, err = modules.Mount(ctx, "work", "")
	require.NoError(t, err)

	_, err = nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox", Kind: model.KindDirectory})
	require.NoError(t, err)
	_, err = nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox/a.md", Kind: model.KindFile})
	require.NoError(t, err)
	_, err = nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/b.md", Kind: model.KindFile})
	require.NoError(t, err)
	_, err = nodes.Create(ctx, CreateNodeRequest{Module: "work", Path: "/report.md", Kind: model.KindFile})
	require.NoError(t, err)

	tree, err := nodes.GetTree(ctx, "notes", nil)
	require.NoError(t, err)
	require.NotNil(t, tree)
	assert.True(t, tree.Node.IsRoot())
	assert.False(t, tree.Virtual)
	require.Len(t, tree.Children, 2)
	assert.Equal(t, "/b.md", tree.Children[0].Node.Path)
	assert.Equal(t, "/inbox", tree.Children[1].Node.Path)
	require.Len(t, tree.Children[1].Children, 1)
	assert.Equal(t, "/inbox/a.md", tree.Children[1].Children[0].Node.Path)

	// a filter keeps matches plus their ancestor chain
	filtered, err := nodes.GetTree(ctx, "notes", func(n *model.Node) bool {
		return n.Path == "/inbox/a.md"
	})
	require.NoError(t, err)
	require.NotNil(t, filtered)
	assert.True(t, filtered.Node.IsRoot())
	require.Len(t, filtered.Children, 1)
	assert.Equal(t, "/inbox", filtered.Children[0].Node.Path)

	// the work module never leaks into the notes tree
	work, err := nodes.GetTree(ctx, "work", nil)
	require.NoError(t, err)
	require.Len(t, work.Children, 1)
	assert.Equal(t, "/report.md", work.Children[0].Node.Path)

	empty, err := nodes.GetTree(ctx, "absent", nil)
	require.NoError(t, err)
	assert.Nil(t, empty)

	none, err := nodes.GetTree(ctx, "notes", func(n *model.Node) bool { return false })
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestNodeService_GetTree_VirtualRoot(t *testing.T) {
	nodes, modules, st, _ := newTestServices()
	ctx := context.TODO()

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)
	_, err = nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/a.md", Kind: model.KindFile})
	require.NoError(t, err)

	// a node with a dangling parent link cannot attach to the natural root
	missing := uuid.New().String()
	orphan := &model.Node{
		ID:       uuid.New().String(),
		Module:   "notes",
		Path:     "/ghost/x.md",
		Name:     "x.md",
		Kind:     model.KindFile,
		ParentID: &missing,
	}
	require.NoError(t, st.CreateNode(ctx, orphan))

	tree, err := nodes.GetTree(ctx, "notes", nil)
	require.NoError(t, err)
	require.NotNil(t, tree)
	assert.True(t, tree.Virtual)
	require.Len(t, tree.Children, 2)
	assert.True(t, tree.Children[0].Node.IsRoot())
	assert.Equal(t, "/ghost/x.md", tree.Children[1].Node.Path)
}

func TestNodeService_Copy(t *testing.T) {
	nodes, modules, st, _ := newTestServices()
	ctx := context.TODO()

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)

	dir, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox", Kind: model.KindDirectory})
	require.NoError(t, err)
	src, err := nodes.Create(ctx, CreateNodeRequest{
		Module:  "notes",
		Path:    "/inbox/a.md",
		Kind:    model.KindFile,
		Content: "{{sun::star}}",
	})
	require.NoError(t, err)
	target, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/archive", Kind: model.KindDirectory})
	require.NoError(t, err)

	copied, err := nodes.Copy(ctx, dir.ID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, "/archive/inbox", copied.Path)

	copiedFile, err := st.GetNodeByPath(ctx, "notes", "/archive/inbox/a.md")
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, copiedFile.ID)

	// the copy owns fresh cards; nothing is shared with the source
	srcCards, err := st.ListNodeCards(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, srcCards, 1)
	dstCards, err := st.ListNodeCards(ctx, copiedFile.ID)
	require.NoError(t, err)
	require.Len(t, dstCards, 1)
	assert.NotEqual(t, srcCards[0].ID, dstCards[0].ID)
	assert.Equal(t, srcCards[0].Front, dstCards[0].Front)
	assert.NotContains(t, copiedFile.Content, srcCards[0].ID)
	assert.Contains(t, copiedFile.Content, dstCards[0].ID)

	// the source tree is untouched
	_, err = st.GetNodeByPath(ctx, "notes", "/inbox/a.md")
	assert.NoError(t, err)
}

func TestNodeService_Events(t *testing.T) {
	nodes, modules, _, bus := newTestServices()
	ctx := context.TODO()

	var types []event.Type
	for _, typ := range []event.Type{
		event.NodeAdded, event.NodeMoved, event.NodeRenamed,
		event.NodeContentUpdated, event.NodeMetaUpdated, event.NodeRemoved,
	} {
		typ := typ
		bus.Subscribe(typ, func(e event.Event) { types = append(types, typ) })
	}

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)

	dir, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/inbox", Kind: model.KindDirectory})
	require.NoError(t, err)
	file, err := nodes.Create(ctx, CreateNodeRequest{Module: "notes", Path: "/a.md", Kind: model.KindFile})
	require.NoError(t, err)

	content := "body"
	_, err = nodes.Update(ctx, file.ID, UpdateNodeRequest{Content: &content})
	require.NoError(t, err)
	_, err = nodes.Update(ctx, file.ID, UpdateNodeRequest{Meta: map[string]string{"k": "v"}})
	require.NoError(t, err)
	_, err = nodes.Move(ctx, file.ID, dir.ID)
	require.NoError(t, err)
	_, err = nodes.Rename(ctx, file.ID, "b.md")
	require.NoError(t, err)
	_, err = nodes.Delete(ctx, file.ID)
	require.NoError(t, err)

	assert.Equal(t, []event.Type{
		event.NodeAdded, // mount creates the root
		event.NodeAdded,
		event.NodeAdded,
		event.NodeContentUpdated,
		event.NodeMetaUpdated,
		event.NodeMoved,
		event.NodeRenamed,
		event.NodeRemoved,
	}, types)
}

// failingProvider writes an entity and then aborts, to prove the node write
// and all provider writes roll back together.
type failingProvider struct{}

func (failingProvider) Name() string                            { return "failing" }
func (failingProvider) Capability() string                      { return "failing" }
func (failingProvider) CanHandle(node *model.Node) bool         { return node.Kind == model.KindFile }
func (failingProvider) Validate(*model.Node, string) []error    { return nil }
func (failingProvider) Cleanup(context.Context, store.Store, []string) error { return nil }

func (failingProvider) ParseAndReconcile(ctx context.Context, tx store.Store, node *model.Node, content string) (string, error) {
	card := &model.Card{ID: uuid.New().String(), NodeID: node.ID, Module: node.Module, Front: "f"}
	if err := tx.SaveCard(ctx, card); err != nil {
		return "", err
	}
	return "", errors.New("marker scan failed")
}

func (failingProvider) OnCopy(ctx context.Context, tx store.Store, src, dst *model.Node, content string) (string, error) {
	return content, nil
}

func TestNodeService_PipelineAtomicity(t *testing.T) {
	_, modules, st, bus := newTestServices()
	ctx := context.TODO()

	pipeline := provider.NewPipeline(provider.NewCardProvider(), failingProvider{})
	nodes := NewNodeService(st, bus, pipeline)

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)

	added := 0
	bus.Subscribe(event.NodeAdded, func(e event.Event) { added++ })

	_, err = nodes.Create(ctx, CreateNodeRequest{
		Module:  "notes",
		Path:    "/a.md",
		Kind:    model.KindFile,
		Content: "{{sun::star}}",
	})
	require.Error(t, err)
	assert.True(t, IsProvider(err))

	// neither the node nor any provider write survives the abort
	_, err = st.GetNodeByPath(ctx, "notes", "/a.md")
	assert.ErrorIs(t, err, store.ErrNodeNotFound)
	cards, err := st.ListModuleCards(ctx, "notes")
	require.NoError(t, err)
	assert.Empty(t, cards)
	assert.Zero(t, added)
}

func TestNodeService_UpdateAtomicity(t *testing.T) {
	nodes, modules, st, bus := newTestServices()
	ctx := context.TODO()

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)

	node, err := nodes.Create(ctx, CreateNodeRequest{
		Module:  "notes",
		Path:    "/a.md",
		Kind:    model.KindFile,
		Content: "{{sun::star}}",
	})
	require.NoError(t, err)
	before := node.Content

	broken := NewNodeService(st, bus, provider.NewPipeline(failingProvider{}))
	content := "replacement"
	_, err = broken.Update(ctx, node.ID, UpdateNodeRequest{Content: &content})
	assert.True(t, IsProvider(err))

	after, err := nodes.Get(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after.Content)
}

func TestNodeService_CapabilityOptOut(t *testing.T) {
	nodes, modules, st, _ := newTestServices()
	ctx := context.TODO()

	_, err := modules.Mount(ctx, "notes", "")
	require.NoError(t, err)

	// a node tagged task-only keeps card markers as plain text
	node, err := nodes.Create(ctx, CreateNodeRequest{
		Module:       "notes",
		Path:         "/a.md",
		Kind:         model.KindFile,
		Content:      "{{sun::star}}\n- [ ] water plants",
		Capabilities: []string{"task"},
	})
	require.NoError(t, err)
	assert.Contains(t, node.Content, "{{sun::star}}")

	cards, err := st.ListNodeCards(ctx, node.ID)
	require.NoError(t, err)
	assert.Empty(t, cards)
	tasks, err := st.ListNodeTasks(ctx, node.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}
