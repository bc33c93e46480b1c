package audit

import "time"

// Action identifies a privileged operation in the audit trail. New actions
// are added as new constants, never by repurposing existing ones.
type Action string

const (
	ActionUserLogin         Action = "USER_LOGIN"
	ActionUserCreated       Action = "USER_CREATED"
	ActionUserUpdated       Action = "USER_UPDATED"
	ActionUserDeleted       Action = "USER_DELETED"
	ActionRoleChanged       Action = "ROLE_CHANGED"
	ActionInvitationSent    Action = "INVITATION_SENT"
	ActionPermissionChanged Action = "PERMISSION_CHANGED"
	ActionUpdateCreated     Action = "UPDATE_CREATED"
	ActionUpdateUpdated     Action = "UPDATE_UPDATED"
	ActionUpdateDeleted     Action = "UPDATE_DELETED"
	ActionUpdatePublished   Action = "UPDATE_PUBLISHED"
	ActionDeployment        Action = "DEPLOYMENT"
)

// Entry is one immutable audit record. Rows are never updated or deleted.
type Entry struct {
	ID            int64          `json:"id"`
	Action        Action         `json:"action"`
	EntityType    string         `json:"entityType"`
	EntityID      *int64         `json:"entityId,omitempty"`
	PerformedByID int64          `json:"performedById"`
	UserID        *int64         `json:"userId,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	IPAddress     string         `json:"ipAddress,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// EntityRef builds the optional entity id pointer.
func EntityRef(id int64) *int64 {
	return &id
}

// Filters narrows audit listings.
type Filters struct {
	Action     string
	EntityType string
	ActorID    int64
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

// PagingInfo describes the window returned by a listing.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
}
