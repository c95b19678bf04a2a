package vault

import (
	"errors"
	"testing"
)

func TestAssetIDValid(t *testing.T) {
	cases := []string{
		"cosmos:restakechain-1/bank:urst",
		"cosmos:cosmoshub-4/cw20:rst1qqqsyqcyq5rqwzqfpg9scrgwpuqqqqqqqrl0ta9",
		"eip155:1/bank:wei",
	}
	for _, raw := range cases {
		if err := AssetID(raw).Validate(); err != nil {
			t.Fatalf("expected %q to validate: %v", raw, err)
		}
	}
}

func TestAssetIDInvalid(t *testing.T) {
	cases := []string{
		"",
		"cosmos:restakechain-1",
		"cosmos/bank:urst",
		"COSMOS:restakechain-1/bank:urst",
		"co:restakechain-1/bank:urst",
		"cosmos:restakechain-1/bank:",
		"cosmos:restakechain-1/b!nk:urst",
	}
	for _, raw := range cases {
		if err := AssetID(raw).Validate(); !errors.Is(err, ErrInvalidAssetID) {
			t.Fatalf("expected %q to be rejected, got %v", raw, err)
		}
	}
}

func TestAssetIDParse(t *testing.T) {
	id, err := BankAssetID("cosmos", "restakechain-1", "urst")
	if err != nil {
		t.Fatalf("bank asset id: %v", err)
	}
	parsed, err := id.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.ChainNamespace != "cosmos" || parsed.ChainReference != "restakechain-1" {
		t.Fatalf("unexpected chain segments: %+v", parsed)
	}
	if parsed.AssetNamespace != AssetNamespaceBank || parsed.AssetReference != "urst" {
		t.Fatalf("unexpected asset segments: %+v", parsed)
	}
}
