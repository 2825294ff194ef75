package chainbridge

import (
	"math/big"
	"testing"
)

func TestWeiToGweiFloorDivides(t *testing.T) {
	cases := []struct {
		wei  *big.Int
		want *big.Int
	}{
		{big.NewInt(1_000_000_000), big.NewInt(1)},
		{big.NewInt(1_999_999_999), big.NewInt(1)},
		{big.NewInt(2_000_000_000), big.NewInt(2)},
		{big.NewInt(0), big.NewInt(0)},
		{big.NewInt(999_999_999), big.NewInt(0)},
	}
	for _, c := range cases {
		got := weiToGwei(c.wei)
		if got.Cmp(c.want) != 0 {
			t.Errorf("weiToGwei(%v) = %v, want %v", c.wei, got, c.want)
		}
	}
}

func TestWeiToGweiLargeValue(t *testing.T) {
	// 123.456789123 ether expressed in wei, floor-divided back to gwei.
	wei, ok := new(big.Int).SetString("123456789123000000000", 10)
	if !ok {
		t.Fatalf("failed to construct test wei value")
	}
	want := big.NewInt(123_456_789_123)
	if got := weiToGwei(wei); got.Cmp(want) != 0 {
		t.Fatalf("weiToGwei(%v) = %v, want %v", wei, got, want)
	}
}
