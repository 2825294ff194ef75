package walletaddr

import "testing"

const sampleLower = "0xde0b295669a9fd93d5f28d9ec85e40f4cb697bae"

func TestChecksumRoundTrip(t *testing.T) {
	checksum := Checksum(sampleLower)
	if checksum == sampleLower {
		t.Fatalf("expected mixed-case checksum, got lower-case %q", checksum)
	}
	if Normalize(checksum) != sampleLower {
		t.Fatalf("Normalize(Checksum(x)) should round-trip to x, got %q", Normalize(checksum))
	}
}

func TestEqualIsCaseInsensitive(t *testing.T) {
	upper := "0xDE0B295669A9FD93D5F28D9EC85E40F4CB697BAE"
	if !Equal(sampleLower, upper) {
		t.Fatalf("expected case-insensitive equality")
	}
	if Equal(sampleLower, "0x1111111111111111111111111111111111111111") {
		t.Fatalf("did not expect unrelated addresses to be equal")
	}
}

func TestValidRejectsMalformedAddresses(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{sampleLower, true},
		{"", false},
		{"not-an-address", false},
		{"0x1234", false},
	}
	for _, c := range cases {
		if got := Valid(c.addr); got != c.want {
			t.Errorf("Valid(%q) = %v, want %v", c.addr, got, c.want)
		}
	}
}

func TestNormalizeTrimsWhitespace(t *testing.T) {
	if got := Normalize("  " + sampleLower + "  "); got != sampleLower {
		t.Fatalf("got %q want %q", got, sampleLower)
	}
}
