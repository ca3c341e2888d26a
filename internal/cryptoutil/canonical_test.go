package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"transaction-certification-service/internal/domain"
)

func TestCents(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"100.50", 10050},
		{"0.01", 1},
		{"0", 0},
		{"1.999", 199},    // floor: 切り捨て
		{"9999999.99", 999999999},
	}
	for _, tt := range tests {
		cents, err := Cents(decimal.RequireFromString(tt.amount))
		if err != nil {
			t.Fatalf("Cents(%s): unexpected error: %v", tt.amount, err)
		}
		if cents != tt.want {
			t.Errorf("Cents(%s) = %d, want %d", tt.amount, cents, tt.want)
		}
	}
}

func TestCents_OutOfRange(t *testing.T) {
	for _, amount := range []string{"-0.01", "10000000.00"} {
		_, err := Cents(decimal.RequireFromString(amount))
		if !errors.Is(err, domain.ErrAmountOutOfRange) {
			t.Errorf("Cents(%s): want ErrAmountOutOfRange, got %v", amount, err)
		}
	}
}

func TestEncode_KnownVector(t *testing.T) {
	// 仕様化済みのクライアント互換ベクタ
	data, err := Encode("PC0000000000000000001", "PC0000000000000000002", 10050)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "PC0000000000000000001PC0000000000000000002000010050"
	if string(data) != want {
		t.Errorf("Encode = %q, want %q", string(data), want)
	}
	if !strings.HasSuffix(string(data), "000010050") {
		t.Errorf("canonical string must end in 000010050, got %q", string(data))
	}

	sum := sha256.Sum256([]byte(want))
	if Hash(data) != hex.EncodeToString(sum[:]) {
		t.Errorf("Hash mismatch with independent SHA-256 of %q", want)
	}
}

func TestEncode_TrimsAccountNumbers(t *testing.T) {
	trimmed, err := Encode("PC001", "PC002", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	padded, err := Encode("  PC001 ", "\tPC002\n", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(trimmed) != string(padded) {
		t.Errorf("whitespace must not change encoding: %q vs %q", trimmed, padded)
	}
}

func TestEncode_FieldRoundTrip(t *testing.T) {
	sender := "PC0000000000000000001"
	receiver := "PC0000000000000000002"
	cents := int64(10050)

	data, err := Encode(sender, receiver, cents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 固定幅レイアウトから3フィールドを復元できること
	s := string(data)
	gotCents := s[len(s)-9:]
	gotSender := s[:len(sender)]
	gotReceiver := s[len(sender) : len(s)-9]

	if gotSender != sender {
		t.Errorf("sender = %q, want %q", gotSender, sender)
	}
	if gotReceiver != receiver {
		t.Errorf("receiver = %q, want %q", gotReceiver, receiver)
	}
	if gotCents != "000010050" {
		t.Errorf("cents field = %q, want 000010050", gotCents)
	}
}

func TestEncode_RejectsOverflow(t *testing.T) {
	if _, err := Encode("A", "B", 1000000000); !errors.Is(err, domain.ErrAmountOutOfRange) {
		t.Errorf("want ErrAmountOutOfRange, got %v", err)
	}
	if _, err := Encode("A", "B", -1); !errors.Is(err, domain.ErrAmountOutOfRange) {
		t.Errorf("want ErrAmountOutOfRange for negative cents, got %v", err)
	}
}
