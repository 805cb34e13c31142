package sensors

import (
	"errors"
	"testing"
)

func TestDecodeHMC5983(t *testing.T) {
	// X=390, Z=-195, Y=39 at gain code 5 (390 LSB/G)
	buf := []byte{0x01, 0x86, 0xFF, 0x3D, 0x00, 0x27}
	s, err := decodeHMC5983(buf, hmcGainLSB[5])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Mx != 100 || s.My != 10 || s.Mz != -50 {
		t.Fatalf("decoded %+v, want Mx=100 My=10 Mz=-50", s)
	}
}

func TestDecodeHMC5983Overflow(t *testing.T) {
	// Z reads -4096 (0xF000)
	buf := []byte{0x00, 0x10, 0xF0, 0x00, 0x00, 0x10}
	if _, err := decodeHMC5983(buf, hmcGainLSB[1]); !errors.Is(err, ErrMagOverflow) {
		t.Fatalf("err = %v, want ErrMagOverflow", err)
	}
}
