package model

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	// KindFile marks a node that carries content.
	KindFile = "file"
	// KindDirectory marks a node that owns children.
	KindDirectory = "directory"
)

// Node is a single entry in a module tree, either a file or a directory.
// The tree is stored flat; parent/child linkage is expressed through ParentID
// and reconstructed on read.
type Node struct {
	ID           string  `gorm:"primaryKey;uuid;not null" json:"id"`
	Module       string  `gorm:"not null;uniqueIndex:idx_nodes_module_path;index:idx_nodes_module" json:"module"`
	Path         string  `gorm:"not null;uniqueIndex:idx_nodes_module_path;index:idx_nodes_path" json:"path"`
	Name         string  `gorm:"not null" json:"name"`
	Kind         string  `gorm:"not null" json:"kind"`
	ParentID     *string `gorm:"uuid;index:idx_nodes_parent_id" json:"parent_id,omitempty"`
	Content      string  `json:"content,omitempty"`
	Meta         string  `json:"meta,omitempty"` // JSON object, open key->value attributes
	Capabilities string  `json:"capabilities,omitempty"` // JSON array of provider capability tags
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (n *Node) TableName() string {
	return "nodes"
}

func (n *Node) IsDirectory() bool {
	return n.Kind == KindDirectory
}

func (n *Node) IsRoot() bool {
	return n.Path == "/"
}

// MetaMap decodes the node metadata. A missing or empty column decodes to an
// empty map, never nil.
func (n *Node) MetaMap() (map[string]string, error) {
	meta := make(map[string]string)
	if n.Meta == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(n.Meta), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (n *Node) SetMetaMap(meta map[string]string) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	n.Meta = string(data)
	return nil
}

// CapabilityList decodes the capability tags carried on the node.
func (n *Node) CapabilityList() ([]string, error) {
	if n.Capabilities == "" {
		return nil, nil
	}
	var caps []string
	if err := json.Unmarshal([]byte(n.Capabilities), &caps); err != nil {
		return nil, err
	}
	return caps, nil
}

func (n *Node) SetCapabilityList(caps []string) error {
	if caps == nil {
		n.Capabilities = ""
		return nil
	}
	data, err := json.Marshal(caps)
	if err != nil {
		return err
	}
	n.Capabilities = string(data)
	return nil
}

// HasCapability reports whether a provider with the given capability tag
// applies to this node. An empty capability list opts the node into every
// registered provider; a list that fails to decode opts it out of all of
// them, so corrupt data never widens the pipeline.
func (n *Node) HasCapability(tag string) bool {
	caps, err := n.CapabilityList()
	if err != nil {
		return false
	}
	if len(caps) == 0 {
		return true
	}
	for _, c := range caps {
		if c == tag {
			return true
		}
	}
	return false
}

// SplitPath returns the parent path and the last segment of an absolute
// slash-separated path. The parent of a top-level entry is "/".
func SplitPath(path string) (parent, name string) {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/", strings.TrimPrefix(path, "/")
	}
	return path[:idx], path[idx+1:]
}

// JoinPath joins a parent path and a child name without doubling separators.
func JoinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
