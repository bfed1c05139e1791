package auth

import (
	"testing"
	"time"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	token, err := IssueAccessToken("secret", "u-1", RoleCashier, 3, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := VerifyAccessToken(ParseBearerToken("Bearer "+token), "secret")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "u-1" || claims.OutletID != 3 || claims.Role != RoleCashier {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := VerifyAccessToken(token, "other"); err == nil {
		t.Fatalf("expected signature failure")
	}
	if _, err := VerifyAccessToken(token, ""); err == nil {
		t.Fatalf("expected failure without a configured secret")
	}
}

func TestVerifyRejectsExpiredAndUnscoped(t *testing.T) {
	expired, _ := IssueAccessToken("secret", "u-1", RoleOwner, 1, -time.Minute)
	if _, err := VerifyAccessToken(expired, "secret"); err == nil {
		t.Fatalf("expected expired token to fail")
	}
	unscoped, _ := IssueAccessToken("secret", "u-1", RoleOwner, 0, time.Hour)
	if _, err := VerifyAccessToken(unscoped, "secret"); err == nil {
		t.Fatalf("expected token without outlet to fail")
	}
	unknown, _ := IssueAccessToken("secret", "u-1", UserRole("WAITER"), 1, time.Hour)
	if _, err := VerifyAccessToken(unknown, "secret"); err == nil {
		t.Fatalf("expected unknown role to fail")
	}
}

func TestParseBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc ": "abc",
		"Basic abc":   "",
		"abc":         "",
		"":            "",
	}
	for header, want := range cases {
		if got := ParseBearerToken(header); got != want {
			t.Fatalf("%q: expected %q, got %q", header, want, got)
		}
	}
}

func TestGetPermissionForAPI(t *testing.T) {
	cases := []struct {
		path   string
		method string
		want   StaffPermission
	}{
		{"/api/pos/orders", "POST", PermOrders},
		{"/api/pos/orders/12/status", "PATCH", PermOrders},
		{"/api/pos/tables/3/qr.png", "GET", PermTables},
		{"/api/payments/9/confirm", "POST", PermPayments},
		{"/api/payments/confirm-by-order/4", "POST", PermPayments},
		{"/api/payments/9/refund", "POST", PermRefunds},
		{"/api/kds/orders", "GET", PermKitchen},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			got := GetPermissionForAPI(tc.path, tc.method)
			if got == nil || *got != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, got)
			}
		})
	}
	if got := GetPermissionForAPI("/health", "GET"); got != nil {
		t.Fatalf("expected no permission for /health, got %s", *got)
	}
}

func TestRolePermissions(t *testing.T) {
	if RoleKitchen.Has(PermPayments) {
		t.Fatalf("kitchen staff must not confirm payments")
	}
	if RoleCashier.Has(PermRefunds) {
		t.Fatalf("cashiers must not refund")
	}
	if !RoleManager.Has(PermRefunds) || !RoleCashier.Has(PermPayments) || !RoleKitchen.Has(PermKitchen) {
		t.Fatalf("missing expected grants")
	}
}
