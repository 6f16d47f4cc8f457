package checkcode

import (
	"math/rand"
	"testing"
)

// appendCheckValue lays out a check value MSB-first at the end of bytes,
// the way a track-layout template's HDR-CRC/DATA-CRC field would.
func appendCheckValue(bytes []byte, value uint64, length int) []byte {
	nbytes := (length + 7) / 8
	out := append([]byte{}, bytes...)
	for i := nbytes - 1; i >= 0; i-- {
		out = append(out, byte(value>>(8*i)))
	}
	return out
}

func TestCRC64ZeroByConstruction(t *testing.T) {
	polys := []Poly{
		{Value: 0x1021, Length: 16, Init: 0xffff},
		{Value: 0x8005, Length: 16, Init: 0},
		{Value: 0x140a0445, Length: 32, Init: 0xffffffff},
		{Value: 0x00a00805, Length: 32, Init: 0},
	}

	rng := rand.New(rand.NewSource(1))
	for _, p := range polys {
		data := make([]byte, 64)
		rng.Read(data)

		check := CRC64(data, p)
		withCheck := appendCheckValue(data, check, p.Length)

		// crc64 over (bytes || check_value) must be zero, since the check
		// value is exactly the value that makes the trailing bits cancel.
		finalPoly := p
		finalPoly.Init = check
		_ = finalPoly // not used directly; verify via running CRC over whole buffer instead

		got := CRC64(withCheck, Poly{Value: p.Value, Length: p.Length, Init: p.Init})
		if got != 0 {
			t.Errorf("poly %#x length %d: CRC over bytes+check = %#x, want 0", p.Value, p.Length, got)
		}
	}
}

func TestECC64CorrectsSingleBitBurst(t *testing.T) {
	p := Poly{Value: 0x8005, Length: 16, Init: 0, ECCMaxSpan: 11}

	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	check := CRC64(data, p)
	good := appendCheckValue(data, check, p.Length)

	// Flip a single bit in the middle of the payload.
	bad := append([]byte{}, good...)
	bad[3] ^= 0x10

	syndrome := CRC64(bad, Poly{Value: p.Value, Length: p.Length, Init: p.Init})
	if syndrome == 0 {
		t.Fatalf("corrupted data unexpectedly has zero CRC")
	}

	span := ECC64(bad, syndrome, p)
	if span == 0 {
		t.Fatalf("ECC64 failed to correct single-bit error")
	}
	if span > p.ECCMaxSpan {
		t.Errorf("ECC64 reported span %d > ecc_max_span %d", span, p.ECCMaxSpan)
	}

	fixedSyndrome := CRC64(bad, Poly{Value: p.Value, Length: p.Length, Init: p.Init})
	if fixedSyndrome != 0 {
		t.Errorf("after correction CRC = %#x, want 0", fixedSyndrome)
	}
	for i := range good {
		if good[i] != bad[i] {
			t.Errorf("byte %d: corrected %#x, want original %#x", i, bad[i], good[i])
		}
	}
}

func TestECC64NoCorrectionWhenCRCAlreadyZero(t *testing.T) {
	p := Poly{Value: 0x1021, Length: 16, Init: 0xffff, ECCMaxSpan: 10}
	data := []byte{0xaa, 0xbb, 0xcc, 0xdd}
	check := CRC64(data, p)
	good := appendCheckValue(data, check, p.Length)

	before := append([]byte{}, good...)
	span := ECC64(good, 0, p)
	if span != 0 {
		t.Errorf("ECC64 on zero syndrome returned span %d, want 0", span)
	}
	for i := range good {
		if good[i] != before[i] {
			t.Errorf("byte %d modified despite zero syndrome", i)
		}
	}
}

func TestChecksum64Arithmetic(t *testing.T) {
	p := Poly{Length: 16}
	data := []byte{1, 2, 3, 4, 5}
	got := Checksum64(data, p)
	want := uint64(1 + 2 + 3 + 4 + 5)
	if got != want {
		t.Errorf("Checksum64 = %d, want %d", got, want)
	}

	// Checksum wraps modulo 2^length.
	p8 := Poly{Length: 8}
	wrap := Checksum64([]byte{200, 100}, p8)
	if wrap != (200+100)%256 {
		t.Errorf("Checksum64 8-bit wrap = %d, want %d", wrap, (200+100)%256)
	}
}

func TestParity64(t *testing.T) {
	if Parity64([]byte{0x01}) != 1 {
		t.Error("single set bit should be odd parity")
	}
	if Parity64([]byte{0x03}) != 0 {
		t.Error("two set bits should be even parity")
	}
}

func TestXOR16SelfCancels(t *testing.T) {
	data := []byte{0x12, 0x34, 0x56, 0x78}
	sum := XOR16(data)
	withCheck := append(append([]byte{}, data...), byte(sum>>8), byte(sum))
	if XOR16(withCheck) != 0 {
		t.Errorf("XOR16 over data+check should cancel to 0, got %#x", XOR16(withCheck))
	}
}
