package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("staff-1", "staff", "schoolops", "test-key", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(pair.AccessToken, "test-key", "schoolops")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "staff-1" || claims.Role != "staff" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := Issue("staff-1", "staff", "schoolops", "test-key", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "other-key", "schoolops"); err == nil {
		t.Fatal("expected error for wrong signing key")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	pair, err := Issue("staff-1", "staff", "other-issuer", "test-key", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "test-key", "schoolops"); err == nil {
		t.Fatal("expected error for issuer mismatch")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue("staff-1", "staff", "schoolops", "test-key", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "test-key", "schoolops"); err == nil {
		t.Fatal("expected error for expired token")
	}
}
