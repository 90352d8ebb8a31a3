package model

import "time"

// Module is a named namespace isolating one node tree. Modules share the
// physical backend but never share nodes.
type Module struct {
	Name        string `gorm:"primaryKey;not null" json:"name"`
	RootNodeID  string `gorm:"uuid;not null" json:"root_node_id"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (m *Module) TableName() string {
	return "modules"
}
