package helpers

import "testing"

func TestKoinuToDoge(t *testing.T) {
	tests := []struct {
		name  string
		koinu uint64
		want  string
	}{
		{"one doge", 100000000, "1"},
		{"fraction", 150000000, "1.5"},
		{"one koinu", 1, "0.00000001"},
		{"zero", 0, "0"},
		{"trailing zeros trimmed", 123450000, "1.2345"},
		{"large", 2_100_000_000_000_000, "21000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KoinuToDoge(tt.koinu)
			if got != tt.want {
				t.Errorf("KoinuToDoge(%d) = %q, want %q", tt.koinu, got, tt.want)
			}
		})
	}
}

func TestDogeToKoinu(t *testing.T) {
	tests := []struct {
		name    string
		s       string
		want    uint64
		wantErr bool
	}{
		{"one doge", "1", 100000000, false},
		{"fraction", "1.5", 150000000, false},
		{"one koinu", "0.00000001", 1, false},
		{"bare fraction", ".5", 50000000, false},
		{"trailing dot", "1.", 100000000, false},
		{"empty", "", 0, true},
		{"letters", "1a", 0, true},
		{"bare dot", ".", 0, true},
		{"two dots", "1.2.3", 0, true},
		{"negative", "-1", 0, true},
		{"overflow", "999999999999999999999", 0, true},
		{"excess precision truncated", "0.000000015", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DogeToKoinu(tt.s)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("DogeToKoinu(%q) = %d, want %d", tt.s, got, tt.want)
			}
		})
	}
}

// Round-trip property: KoinuToDoge followed by DogeToKoinu is identity for
// any koinu value expressible without float involvement.
func TestKoinuRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 99, 100000000, 123456789, 5000000000,
		1<<53 - 1, 2100000000000000, 9007199254740991,
	}
	for _, k := range values {
		doge := KoinuToDoge(k)
		back, err := DogeToKoinu(doge)
		if err != nil {
			t.Fatalf("DogeToKoinu(%q): %v", doge, err)
		}
		if back != k {
			t.Errorf("round trip %d -> %q -> %d", k, doge, back)
		}
	}
}

func TestReverseBytes(t *testing.T) {
	in := []byte{0x01, 0x02, 0x03, 0x04}
	got := ReverseBytes(in)
	want := []byte{0x04, 0x03, 0x02, 0x01}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ReverseBytes = %x, want %x", got, want)
		}
	}
	// Input must not be mutated.
	if in[0] != 0x01 {
		t.Error("input slice was mutated")
	}
}

func TestGenerateSecureRandom(t *testing.T) {
	a, err := GenerateSecureRandom(32)
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateSecureRandom(32)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 32 || len(b) != 32 {
		t.Fatal("wrong length")
	}
	if ConstantTimeCompare(a, b) {
		t.Error("two random draws should not match")
	}
}
