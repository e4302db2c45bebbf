package mpesa

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"0712345678":     "254712345678",
		"+254712345678":  "254712345678",
		"254712345678":   "254712345678",
		"0712 345-678":   "254712345678",
		"(0110) 123 456": "254110123456",
		"":               "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidPhone(t *testing.T) {
	if !ValidPhone("254712345678") {
		t.Fatal("expected valid")
	}
	for _, bad := range []string{"", "712345678", "2547123456789", "255712345678"} {
		if ValidPhone(bad) {
			t.Errorf("expected %q invalid", bad)
		}
	}
}
