package auth

import "strings"

// Permission is a capability tag from a closed set.
type Permission string

const (
	PermUsersView            Permission = "USERS_VIEW"
	PermUsersCreate          Permission = "USERS_CREATE"
	PermUsersUpdate          Permission = "USERS_UPDATE"
	PermRolesManage          Permission = "ROLES_MANAGE"
	PermInventoryView        Permission = "INVENTORY_VIEW"
	PermInventoryAdjustStock Permission = "INVENTORY_ADJUST_STOCK"
	PermProductsManage       Permission = "PRODUCTS_MANAGE"
	PermOrdersView           Permission = "ORDERS_VIEW"
	PermOrdersManage         Permission = "ORDERS_MANAGE"
	PermAuditView            Permission = "AUDIT_VIEW"
)

// AllPermissions lists every known permission.
var AllPermissions = []Permission{
	PermUsersView,
	PermUsersCreate,
	PermUsersUpdate,
	PermRolesManage,
	PermInventoryView,
	PermInventoryAdjustStock,
	PermProductsManage,
	PermOrdersView,
	PermOrdersManage,
	PermAuditView,
}

// Valid reports whether p belongs to the catalog.
func (p Permission) Valid() bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// HumanReadable renders the tag for error messages: USERS_VIEW -> "users view".
func (p Permission) HumanReadable() string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '.', ':', '-':
			return ' '
		}
		return r
	}, strings.ToLower(string(p)))
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
	RoleViewer  = "viewer"
)

// BuiltinRoles returns the roles seeded on a fresh installation.
func BuiltinRoles() []Role {
	return []Role{
		{
			ID:          "role_admin",
			Name:        RoleAdmin,
			Description: "Full access",
			Permissions: append([]Permission(nil), AllPermissions...),
		},
		{
			ID:          "role_manager",
			Name:        RoleManager,
			Description: "Runs the warehouse",
			Permissions: []Permission{
				PermUsersView, PermInventoryView, PermInventoryAdjustStock,
				PermProductsManage, PermOrdersView, PermOrdersManage, PermAuditView,
			},
		},
		{
			ID:          "role_staff",
			Name:        RoleStaff,
			Description: "Handles stock and orders",
			Permissions: []Permission{
				PermInventoryView, PermInventoryAdjustStock, PermOrdersView, PermOrdersManage,
			},
		},
		{
			ID:          "role_viewer",
			Name:        RoleViewer,
			Description: "Read-only access",
			Permissions: []Permission{PermInventoryView, PermOrdersView},
		},
	}
}
