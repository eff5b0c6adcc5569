package utils

import (
	"strings"
	"testing"
)

func TestVerifyGatewayChecksum(t *testing.T) {
	sum := GatewayChecksum("TX1", "M1", "RRN1", "salt")
	if len(sum) != 128 {
		t.Fatalf("expected sha512 hex length 128, got %d", len(sum))
	}
	if !VerifyGatewayChecksum(strings.ToUpper(sum), "TX1", "M1", "RRN1", "salt") {
		t.Fatalf("upper-case checksum should verify")
	}
	if VerifyGatewayChecksum(sum, "TX1", "M1", "RRN2", "salt") {
		t.Fatalf("checksum over a different rrn must not verify")
	}
	if VerifyGatewayChecksum("", "TX1", "M1", "RRN1", "salt") {
		t.Fatalf("empty checksum must not verify")
	}
}

func TestMaskCardNumber(t *testing.T) {
	cases := map[string]string{
		"4111111111111111":    "XXXXXXXXXXXX1111",
		"4111-1111-1111-1234": "XXXXXXXXXXXX1234",
		"123":                 "123",
	}
	for in, want := range cases {
		if got := MaskCardNumber(in); got != want {
			t.Fatalf("MaskCardNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJwtRoundTrip(t *testing.T) {
	t.Setenv("API_SECRET", "test-secret")
	token, err := JwtGenerate(JwtCustomClaim{ID: 7, Name: "ops", Role: "admin", CompanyCode: "KSRTC"})
	if err != nil {
		t.Fatalf("JwtGenerate error: %v", err)
	}
	parsed, err := JwtValidate(token)
	if err != nil || !parsed.Valid {
		t.Fatalf("JwtValidate error: %v", err)
	}
	claim := parsed.Claims.(*JwtCustomClaim)
	if claim.ID != 7 || claim.CompanyCode != "KSRTC" {
		t.Fatalf("unexpected claim %+v", claim)
	}
	t.Setenv("API_SECRET", "other")
	if _, err := JwtValidate(token); err == nil {
		t.Fatalf("token signed with another secret must fail")
	}
}
