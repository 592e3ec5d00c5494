package normalize

import (
	"errors"
	"strings"
	"testing"

	"dailyalchemy/internal/apperr"
)

func TestName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "lowercases", input: "Fire", want: "fire"},
		{name: "trims", input: "  Steam  ", want: "steam"},
		{name: "keeps inner spaces", input: "Hot Spring", want: "hot spring"},
		{name: "unicode", input: "ÉCLAIR", want: "éclair"},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "separator", input: "a|b", wantErr: true},
		{name: "control character", input: "a\x00b", wantErr: true},
		{name: "reserved operand", input: "_ADMIN", wantErr: true},
		{name: "exactly 100", input: strings.Repeat("a", 100), want: strings.Repeat("a", 100)},
		{name: "101 rejected", input: strings.Repeat("a", 101), wantErr: true},
		{name: "100 after trim", input: " " + strings.Repeat("b", 100) + " ", want: strings.Repeat("b", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Name(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Name(%q) expected error, got %q", tt.input, got)
				}
				if !errors.Is(err, apperr.ErrInvalidName) {
					t.Errorf("Name(%q) error = %v, want InvalidName", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Name(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCombinationIsCommutativeAndCaseInsensitive(t *testing.T) {
	pairs := [][2]string{
		{"fire", "water"},
		{"Wind", "Seed"},
		{"earth", "earth"},
		{"Hot Spring", "lava"},
	}

	for _, p := range pairs {
		ab, err := Combination(p[0], p[1])
		if err != nil {
			t.Fatalf("Combination(%q, %q): %v", p[0], p[1], err)
		}
		ba, err := Combination(p[1], p[0])
		if err != nil {
			t.Fatalf("Combination(%q, %q): %v", p[1], p[0], err)
		}
		upper, err := Combination(strings.ToUpper(p[1]), strings.ToUpper(p[0]))
		if err != nil {
			t.Fatalf("Combination upper: %v", err)
		}
		if ab != ba || ab != upper {
			t.Errorf("keys differ: %q %q %q", ab, ba, upper)
		}
	}
}

func TestCombinationFormat(t *testing.T) {
	k, err := Combination("Wind", "Seed")
	if err != nil {
		t.Fatal(err)
	}
	if k != "seed|wind" {
		t.Errorf("Combination() = %q, want %q", k, "seed|wind")
	}

	self, err := Combination("Fire", "fire")
	if err != nil {
		t.Fatal(err)
	}
	if self != "fire|fire" {
		t.Errorf("self combination = %q, want %q", self, "fire|fire")
	}

	a, b, ok := k.Halves()
	if !ok || a != "seed" || b != "wind" {
		t.Errorf("Halves() = %q, %q, %v", a, b, ok)
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{input: "fire|water"},
		{input: "_admin_lava"},
		{input: "water|fire", wantErr: true},
		{input: "Fire|water", wantErr: true},
		{input: "firewater", wantErr: true},
		{input: "_admin_", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseKey(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestAdminKey(t *testing.T) {
	tests := []struct {
		input  string
		prefix Key
		hashed bool
	}{
		{"Lava", "_admin_lava", false},
		{"ice-cream", "_admin_ice-cream", false},
		{"Hot  Spring!", "_admin_hot-spring-", true},
		{"Ice Cream", "_admin_ice-cream-", true},
		{"🌋", "_admin_x-", true},
	}
	for _, tt := range tests {
		got, err := AdminKey(tt.input)
		if err != nil {
			t.Fatalf("AdminKey(%q): %v", tt.input, err)
		}
		if !tt.hashed && got != tt.prefix {
			t.Errorf("AdminKey(%q) = %q, want %q", tt.input, got, tt.prefix)
		}
		if tt.hashed && (!strings.HasPrefix(string(got), string(tt.prefix)) || len(got) != len(tt.prefix)+8) {
			t.Errorf("AdminKey(%q) = %q, want %q plus 8 hex digits", tt.input, got, tt.prefix)
		}
		if !got.IsReserved() {
			t.Errorf("AdminKey(%q) should be reserved", tt.input)
		}
		if _, _, ok := got.Halves(); ok {
			t.Errorf("admin key %q should have no halves", got)
		}
		if again, _ := AdminKey(tt.input); again != got {
			t.Errorf("AdminKey(%q) is not stable: %q then %q", tt.input, got, again)
		}
	}
}

func TestAdminKeyDistinguishesNames(t *testing.T) {
	names := []string{"Ice Cream", "Ice-Cream", "ice_cream", "ice.cream", "icecream", "🌋", "🔥", "x"}
	seen := make(map[Key]string)
	for _, n := range names {
		k, err := AdminKey(n)
		if err != nil {
			t.Fatalf("AdminKey(%q): %v", n, err)
		}
		if prev, ok := seen[k]; ok {
			t.Errorf("AdminKey(%q) = AdminKey(%q) = %q", n, prev, k)
		}
		seen[k] = n
	}
	if a, _ := AdminKey("ICE CREAM"); a != mustAdminKey(t, "ice cream") {
		t.Errorf("names sharing an identity should share a key")
	}
}

func mustAdminKey(t *testing.T, name string) Key {
	t.Helper()
	k, err := AdminKey(name)
	if err != nil {
		t.Fatalf("AdminKey(%q): %v", name, err)
	}
	return k
}
