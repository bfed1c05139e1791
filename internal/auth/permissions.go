package auth

import "strings"

type StaffPermission string

const (
	PermOrders   StaffPermission = "orders"
	PermPayments StaffPermission = "payments"
	PermRefunds  StaffPermission = "refunds"
	PermKitchen  StaffPermission = "kitchen"
	PermTables   StaffPermission = "tables"
)

var rolePermissions = map[UserRole][]StaffPermission{
	RoleOwner:   {PermOrders, PermPayments, PermRefunds, PermKitchen, PermTables},
	RoleManager: {PermOrders, PermPayments, PermRefunds, PermKitchen, PermTables},
	RoleCashier: {PermOrders, PermPayments, PermKitchen},
	RoleKitchen: {PermKitchen},
}

var apiPermissionMap = map[string]StaffPermission{
	"/api/pos/orders":           PermOrders,
	"/api/pos/tables":           PermTables,
	"/api/payments":             PermPayments,
	"POST /api/payments/refund": PermRefunds,
	"/api/kds":                  PermKitchen,
	"/ws/outlets":               PermKitchen,
}

func (r UserRole) Has(perm StaffPermission) bool {
	for _, p := range rolePermissions[r] {
		if p == perm {
			return true
		}
	}
	return false
}

// GetPermissionForAPI returns the permission guarding path, picking the
// longest matching prefix. Method-specific keys ("POST /x") win over plain
// ones of the same length. Refund routes end in /refund and are matched on
// that suffix.
func GetPermissionForAPI(path string, method string) *StaffPermission {
	method = strings.ToUpper(strings.TrimSpace(method))
	if strings.HasPrefix(path, "/api/payments/") && strings.HasSuffix(strings.TrimSuffix(path, "/"), "/refund") {
		path = "/api/payments/refund"
	}

	var bestPath string
	var bestPerm *StaffPermission
	var bestMethodSpecific bool

	for key, perm := range apiPermissionMap {
		keyPath := key
		methodSpecific := false
		if strings.Contains(key, " ") {
			parts := strings.SplitN(key, " ", 2)
			keyMethod := strings.ToUpper(strings.TrimSpace(parts[0]))
			keyPath = strings.TrimSpace(parts[1])
			methodSpecific = true
			if method == "" || method != keyMethod {
				continue
			}
		}

		if !strings.HasPrefix(path, keyPath) {
			continue
		}

		if bestPerm == nil || len(keyPath) > len(bestPath) || (len(keyPath) == len(bestPath) && methodSpecific && !bestMethodSpecific) {
			bestPath = keyPath
			bestMethodSpecific = methodSpecific
			permCopy := perm
			bestPerm = &permCopy
		}
	}

	return bestPerm
}
