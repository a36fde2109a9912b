package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseProviderKey(t *testing.T) {
	tests := []struct {
		input    string
		expected ProviderKey
		wantErr  bool
	}{
		{input: "td", expected: PrimaryBroker},
		{input: "ROB", expected: SecondaryBroker},
		{input: "yf", expected: DataVendor},
		{input: "ib", expected: Institutional},
		{input: "primary_broker", expected: PrimaryBroker},
		{input: "DATA_VENDOR", expected: DataVendor},
		{input: "kraken", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProviderKey(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownProvider) {
					t.Fatalf("ParseProviderKey(%q) error = %v, expected ErrUnknownProvider", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProviderKey(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseProviderKey(%q) = %s, expected %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestProviderKeyString(t *testing.T) {
	if got := Institutional.String(); got != "INSTITUTIONAL" {
		t.Errorf("String() = %q", got)
	}
	if ProviderKey(42).Valid() {
		t.Error("ProviderKey(42) should not be valid")
	}
	if got := ProviderKey(42).String(); got != "ProviderKey(42)" {
		t.Errorf("String() = %q", got)
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := &UnsupportedOperationError{Provider: SecondaryBroker, Operation: OpGetOptionChain}
	err := fmt.Errorf("facade: %w", &ProviderError{Provider: SecondaryBroker, Operation: OpGetOptionChain, Err: inner})

	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Error("expected errors.Is to match ErrUnsupportedOperation")
	}

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatal("expected errors.As to find ProviderError")
	}
	if perr.Provider != SecondaryBroker || perr.Operation != OpGetOptionChain {
		t.Errorf("ProviderError = %+v", perr)
	}
}

func TestTransportError(t *testing.T) {
	err := TransportError("fetch quote", errors.New("connection refused"))
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport in %v", err)
	}
	again := TransportError("outer", err)
	if again.Error() != "outer: fetch quote: transport error: connection refused" {
		t.Errorf("unexpected message %q", again.Error())
	}
}
