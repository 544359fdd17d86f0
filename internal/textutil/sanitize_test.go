package textutil

import "testing"

func TestCompactName(t *testing.T) {
	cases := []struct{ input, want string }{
		{"FC United", "FCUnited"},
		{"  City Kickers ", "CityKickers"},
		{"Home Field", "HomeField"},
		{"Atlético Juniors", "AtleticoJuniors"},
		{`Bad<>:"/\|?*Name`, "BadName"},
		{"U-12 Girls_Blue", "U-12Girls_Blue"},
		{"Real Zaragoza F.C.", "RealZaragozaF.C"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CompactName(tc.input); got != tc.want {
			t.Fatalf("CompactName(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := SanitizeFileName(" a/b:c? "); got != "a-b-c" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("Not A Game!"); got != "not_a_game" {
		t.Fatalf("unexpected token %q", got)
	}
	if got := SanitizeToken("  "); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}
