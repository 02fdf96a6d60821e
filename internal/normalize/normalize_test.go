package normalize

import "testing"

/*
TestValue_Table exercises every normalization method against representative
raw values, including the dial-pad translation of vanity phone numbers and
the empty-result cases the pipeline treats as absent fields.
*/
func TestValue_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		method Method
		want   string
	}{
		{"identity unchanged", "  AnyThing 42 ", Identity, "  AnyThing 42 "},

		{"email lowercased", "John.Doe@Example.COM", Email, "john.doe@example.com"},
		{"email inner spaces deleted", " john doe @ example.com ", Email, "johndoe@example.com"},
		{"email unicode space deleted", "a\u00a0b@c.d", Email, "ab@c.d"},

		{"uppercase trims and raises", "  bob  ", Uppercase, "BOB"},
		{"uppercase empty", "   ", Uppercase, ""},

		{"numeric keeps digits only", "DPID: 12a34-5", Numeric, "12345"},
		{"numeric drops non-ascii digits", "١٢٣45", Numeric, "45"},
		{"numeric empty", "n/a", Numeric, ""},

		{"name keeps letters lowercased", "O'Brien-Smith", Name, "obriensmith"},
		{"name drops digits", "2nd Baron", Name, "ndbaron"},
		{"name keeps unicode letters", "Müller", Name, "müller"},

		{"phone digits pass", "0468732838", Phone, "0468732838"},
		{"phone dialpad letters", "+61468732838abc32", Phone, "6146873283822232"},
		{"phone vanity uppercase", "1-800-FLOWERS", Phone, "18003569377"},
		{"phone punctuation only", "+ () -", Phone, ""},

		{"unknown method unchanged", "as-is", Method("bogus"), "as-is"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Value(tt.raw, tt.method); got != tt.want {
				t.Fatalf("Value(%q, %s) = %q, want %q", tt.raw, tt.method, got, tt.want)
			}
		})
	}
}

/*
TestValue_Idempotent verifies that normalizing an already-normalized value is
a no-op for every method, so re-converting a converted file cannot change any
hash input.
*/
func TestValue_Idempotent(t *testing.T) {
	t.Parallel()

	methods := []Method{Identity, Email, Uppercase, Numeric, Name, Phone}
	inputs := []string{
		"", "  Mixed Case 123 ", "John.Doe@Example.COM", "+61 (4) 687-ABCD",
		"O'Brien", "١٢٣45", "ＡＢＣ１２３",
	}

	for _, m := range methods {
		for _, in := range inputs {
			once := Value(in, m)
			if twice := Value(once, m); twice != once {
				t.Fatalf("Value(Value(%q, %s)) = %q, want %q (not idempotent)", in, m, twice, once)
			}
		}
	}
}

/*
TestNarrowHook checks the wide→narrow folding applied before normalization:
full-width digits and letters become their ASCII forms, ASCII passes through.
*/
func TestNarrowHook(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"１２３４５", "12345"},
		{"ＡＢＣ", "ABC"},
		{"ｊｏｈｎ＠ｅｘ．ｃｏｍ", "john@ex.com"},
		{"plain ascii", "plain ascii"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NarrowHook(tt.in); got != tt.want {
			t.Fatalf("NarrowHook(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

/*
BenchmarkValue_Phone measures the dial-pad translation, the hottest method on
typical Databank exports (several phone columns per record).
*/
func BenchmarkValue_Phone(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Value("+61 (4) 6873-2838 ext. CALL", Phone)
	}
}

/*
BenchmarkValue_Email measures email normalization on a typical address.
*/
func BenchmarkValue_Email(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Value(" First.Last+tag@Example.COM ", Email)
	}
}
