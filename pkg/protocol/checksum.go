package protocol

// CRC-16-CCITT parameters.
const (
	// crc16Polynomial is the CRC-16-CCITT polynomial (0x1021)
	crc16Polynomial = 0x1021

	// crc16HighBitMask is the high bit mask for CRC-16 calculations
	crc16HighBitMask = 0x8000

	bitsPerByte = 8
)

// CRC16CCITT computes the CRC-16-CCITT checksum of data starting from seed.
// Image verification uses CRC16Seed; a sealed image checksums to zero.
func CRC16CCITT(data []byte, seed uint16) uint16 {
	crc := seed

	for _, b := range data {
		crc ^= uint16(b) << bitsPerByte
		for i := 0; i < bitsPerByte; i++ {
			if crc&crc16HighBitMask != 0 {
				crc = (crc << 1) ^ crc16Polynomial
			} else {
				crc = crc << 1
			}
		}
	}

	return crc
}

// SealImage prepares a raw firmware payload for upload: it pads the payload
// with 0xFF until its length is two short of a multiple of ImageLenMultiple,
// then appends the big-endian CRC-16-CCITT of the padded payload. The sealed
// image's length is a multiple of ImageLenMultiple and its CRC folds to
// zero, which is what the agent checks after writing.
func SealImage(payload []byte) []byte {
	sealed := make([]byte, len(payload), len(payload)+ImageLenMultiple+1)
	copy(sealed, payload)

	for len(sealed)%ImageLenMultiple != ImageLenMultiple-2 {
		sealed = append(sealed, 0xFF)
	}

	crc := CRC16CCITT(sealed, CRC16Seed)
	sealed = append(sealed, byte(crc>>8), byte(crc))
	return sealed
}
