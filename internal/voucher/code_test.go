package voucher

import (
	"regexp"
	"testing"
)

func TestRandomCode(t *testing.T) {
	re := regexp.MustCompile(`^VCH-[A-Z0-9]{8}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := RandomCode("VCH-")
		if err != nil {
			t.Fatalf("RandomCode: %v", err)
		}
		if !re.MatchString(code) {
			t.Errorf("code = %q, want prefix and 8 chars from [A-Z0-9]", code)
		}
		seen[code] = true
	}
	if len(seen) < 45 {
		t.Errorf("only %d distinct codes in 50 draws", len(seen))
	}
}
