package commitment

import (
	"crypto/rand"
	"errors"
	"testing"
)

func TestCommitVerifyRoundTrip(t *testing.T) {
	codec := NewKeccak160()

	inputs := [][]byte{
		[]byte("0x1::aptos_coin::AptosCoin"),
		[]byte("EQDk2VTvn04SUKJrW7rXahzdF8_Qi6utb0wj43InCu9vdjrR"),
		[]byte("0x742d35cc6634c0532925a3b844bc454e4438f44e"),
		{0x01, 0x02, 0x03},
	}
	for _, in := range inputs {
		c := codec.Commit(in)
		if err := codec.Verify(in, c); err != nil {
			t.Fatalf("verify(%q, commit) failed: %v", in, err)
		}
	}
}

func TestCommitDistinctInputs(t *testing.T) {
	codec := NewKeccak160()
	seen := make(map[Commitment][]byte)

	for i := 0; i < 256; i++ {
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			t.Fatalf("rand: %v", err)
		}
		c := codec.Commit(buf)
		if prev, ok := seen[c]; ok {
			t.Fatalf("collision between %x and %x", prev, buf)
		}
		seen[c] = buf
	}
}

func TestVerifyMismatch(t *testing.T) {
	codec := NewKeccak160()
	c := codec.Commit([]byte("real-destination-address"))

	err := codec.Verify([]byte("spoofed-destination-address"), c)
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *MismatchError, got %T", err)
	}
	if mismatch.Expected == mismatch.Observed {
		t.Fatal("mismatch error must carry distinct digests")
	}
}

func TestVerifyFieldNamesField(t *testing.T) {
	codec := NewKeccak160()
	c := codec.Commit([]byte("asset-a"))

	err := VerifyField(codec, "asset", []byte("asset-b"), c)
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *MismatchError, got %v", err)
	}
	if mismatch.Field != "asset" {
		t.Fatalf("expected field %q, got %q", "asset", mismatch.Field)
	}
}

func TestNormalizeDoubledPrefix(t *testing.T) {
	codec := NewKeccak160()

	plain := []byte("0xabc123def")
	doubled := []byte("0x0xabc123def")

	if codec.Commit(plain) != codec.Commit(doubled) {
		t.Fatal("doubled 0x prefix must commit to the same digest")
	}
	if err := codec.Verify(doubled, codec.Commit(plain)); err != nil {
		t.Fatalf("verify with doubled prefix: %v", err)
	}
}

func TestParseCommitmentTolerantPrefix(t *testing.T) {
	want := "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

	for _, in := range []string{want, "0x0x742d35Cc6634C0532925a3b844Bc454e4438f44e"} {
		got, err := ParseCommitment(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got.Hex() != want {
			t.Fatalf("parse %q = %s, want %s", in, got.Hex(), want)
		}
	}

	if _, err := ParseCommitment("not-an-address"); err == nil {
		t.Fatal("expected error for malformed commitment")
	}
}
