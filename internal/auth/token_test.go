package auth

import (
	"strings"
	"testing"
	"time"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNewService_RejectsShortKey(t *testing.T) {
	if _, err := NewService("short", time.Minute); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestIssueAndValidate(t *testing.T) {
	svc, err := NewService(testKey, time.Minute)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	token, expiresAt, err := svc.IssueToken("plcsnmp")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("expiry %v is not in the future", expiresAt)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Client != "plcsnmp" {
		t.Errorf("client = %q, want %q", claims.Client, "plcsnmp")
	}
}

func TestValidateToken_WrongKey(t *testing.T) {
	issuerSvc, _ := NewService(testKey, time.Minute)
	otherSvc, _ := NewService(strings.Repeat("x", 32), time.Minute)

	token, _, err := issuerSvc.IssueToken("plcsnmp")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if _, err := otherSvc.ValidateToken(token); err == nil {
		t.Fatal("expected validation failure with a different key")
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	svc, _ := NewService(testKey, time.Minute)
	if _, err := svc.ValidateToken("not-a-token"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
