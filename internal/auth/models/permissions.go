package models

import id "authority/pkg/domain"

// Group aggregates permissions. Inactive groups contribute nothing.
type Group struct {
	ID       id.GroupID `json:"id"`
	Name     string     `json:"name"`
	Codename string     `json:"codename"`
	IsActive bool       `json:"is_active"`
	IsSystem bool       `json:"is_system"`
}

// Permission is identified by a unique codename such as "users.view".
type Permission struct {
	ID          id.PermissionID `json:"id"`
	Codename    string          `json:"codename"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
}

type GroupPermission struct {
	GroupID      id.GroupID
	PermissionID id.PermissionID
}

type UserGroup struct {
	UserID  id.UserID
	GroupID id.GroupID
}
