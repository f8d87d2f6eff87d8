package protocol

import "testing"

func TestCRC16CCITTKnownVectors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		seed uint16
		want uint16
	}{
		{"check string", []byte("123456789"), 0xFFFF, 0x29B1},
		{"empty is seed", nil, 0xFFFF, 0xFFFF},
		{"single zero", []byte{0x00}, 0xFFFF, 0xE1F0},
		{"zero seed", []byte("123456789"), 0x0000, 0x31C3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC16CCITT(tt.data, tt.seed); got != tt.want {
				t.Errorf("CRC16CCITT(%q, %#04x) = %#04x, want %#04x", tt.data, tt.seed, got, tt.want)
			}
		})
	}
}

func TestSealImageFoldsToZero(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 4, 5, 127, 1022} {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i * 7)
		}

		sealed := SealImage(payload)

		if len(sealed)%ImageLenMultiple != 0 {
			t.Fatalf("payload %d: sealed length %d is not a multiple of %d", n, len(sealed), ImageLenMultiple)
		}
		if crc := CRC16CCITT(sealed, CRC16Seed); crc != 0 {
			t.Fatalf("payload %d: sealed image CRC = %#04x, want 0", n, crc)
		}
	}
}

func TestSealImagePreservesPayload(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	sealed := SealImage(payload)

	for i, b := range payload {
		if sealed[i] != b {
			t.Fatalf("sealed[%d] = %#02x, want %#02x", i, sealed[i], b)
		}
	}
	// 5 bytes pad to 6 (len%4 == 2) before the CRC goes on.
	if sealed[5] != 0xFF {
		t.Fatalf("padding byte = %#02x, want 0xFF", sealed[5])
	}
	if len(sealed) != 8 {
		t.Fatalf("sealed length = %d, want 8", len(sealed))
	}
}

func TestSealImageSingleBitCorruption(t *testing.T) {
	sealed := SealImage([]byte("firmware image payload"))

	corrupt := make([]byte, len(sealed))
	copy(corrupt, sealed)
	corrupt[3] ^= 0x10

	if crc := CRC16CCITT(corrupt, CRC16Seed); crc == 0 {
		t.Fatal("single-bit corruption still folds to zero")
	}
}
