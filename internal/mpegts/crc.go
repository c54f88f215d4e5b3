package mpegts

import "fmt"

// MPEG-2 CRC32, polynomial 0x04C11DB7, no reflection.
var crcTable [256]uint32

func init() {
	for i := range crcTable {
		crc := uint32(i) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

func crc32MPEG(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

// checkCRC verifies a section that ends in its own CRC32.
func checkCRC(section []byte) error {
	if len(section) < 4 {
		return fmt.Errorf("mpegts: section too short for CRC32")
	}
	if crc32MPEG(section) != 0 {
		return fmt.Errorf("mpegts: CRC32 mismatch")
	}
	return nil
}
