package ledger

import (
	"testing"
)

func TestValidAddress_Genesis(t *testing.T) {
	if !ValidAddress("rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh") {
		t.Fatal("genesis address should be valid")
	}
}

func TestValidAddress_RoundTrip(t *testing.T) {
	for i := 0; i < 32; i++ {
		var id [20]byte
		for j := range id {
			id[j] = byte(i*7 + j*13)
		}
		addr := EncodeAccountID(id)
		if !ValidAddress(addr) {
			t.Fatalf("encoded address %q failed validation", addr)
		}
	}
}

func TestValidAddress_Rejects(t *testing.T) {
	var id [20]byte
	id[5] = 0x42
	good := EncodeAccountID(id)

	// Flip the last character to another alphabet symbol.
	last := good[len(good)-1]
	repl := byte('p')
	if last == 'p' {
		repl = 's'
	}
	corrupted := good[:len(good)-1] + string(repl)

	cases := []string{
		"",
		"r",
		// wrong leading char
		"xHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh",
		// bad checksum
		"rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTz",
		// '0' is not in the alphabet
		"rHb9CJAWyB4rj91VRWn96DkukG4bwdty0h",
		// too long
		"rHb9CJAWyB4rj91VRWn96DkukG4bwdtyThrHb9CJAW",
		corrupted,
	}
	for _, c := range cases {
		if ValidAddress(c) {
			t.Errorf("ValidAddress(%q) = true, want false", c)
		}
	}
}

func TestSplitTag(t *testing.T) {
	addr, tag, ok := SplitTag("rAbc:12345")
	if !ok || addr != "rAbc" || tag != 12345 {
		t.Fatalf("SplitTag = %q %d %v", addr, tag, ok)
	}

	addr, _, ok = SplitTag("rAbc")
	if ok || addr != "rAbc" {
		t.Fatalf("untagged SplitTag = %q %v", addr, ok)
	}

	addr, _, ok = SplitTag("rAbc:notanumber")
	if ok || addr != "rAbc:notanumber" {
		t.Fatalf("malformed tag SplitTag = %q %v", addr, ok)
	}
}

func TestWithTagBaseAddress(t *testing.T) {
	id := WithTag("rAbc", 7)
	if id != "rAbc:7" {
		t.Fatalf("WithTag = %q", id)
	}
	if BaseAddress(id) != "rAbc" {
		t.Fatalf("BaseAddress = %q", BaseAddress(id))
	}
}
