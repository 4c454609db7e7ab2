package jwt

import (
	"strings"
	"testing"
	"time"

	"chatdesk-backend/internal/env"
)

func TestCreateAndParseToken(t *testing.T) {
	t.Setenv(env.OperatorSecret, "test-operator-secret")

	operator := Operator{
		Id:       "op-1",
		Email:    "agent@example.com",
		TenantId: "tenant-1",
	}

	token, err := CreateToken(operator, RoleOperator, time.Now().Add(time.Hour).Unix())
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	if !strings.HasSuffix(token, "1") {
		t.Fatalf("operator token missing role suffix: %s", token)
	}

	claims, err := ParseToken(token, RoleOperator)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims["id"] != "op-1" || claims["email"] != "agent@example.com" || claims["tenantId"] != "tenant-1" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	t.Setenv(env.OperatorSecret, "test-operator-secret")

	token, err := CreateToken(Operator{Id: "op-1", TenantId: "tenant-1"}, RoleOperator, 0)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	if _, err := ParseToken(token[:len(token)-1], RoleOperator); err == nil {
		t.Fatal("token without role char should be rejected")
	}

	tampered := "x" + token[1:]
	if _, err := ParseToken(tampered, RoleOperator); err == nil {
		t.Fatal("tampered token should be rejected")
	}

	if _, err := ParseToken("", RoleOperator); err == nil {
		t.Fatal("empty token should be rejected")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	t.Setenv(env.OperatorSecret, "secret-a")
	token, err := CreateToken(Operator{Id: "op-1", TenantId: "tenant-1"}, RoleOperator, 0)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	t.Setenv(env.OperatorSecret, "secret-b")
	if _, err := ParseToken(token, RoleOperator); err == nil {
		t.Fatal("token signed with a different secret should be rejected")
	}
}
