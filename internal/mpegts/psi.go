package mpegts

import (
	"encoding/binary"
	"fmt"
)

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02

	programNumber     = 1
	transportStreamID = 1
)

// section wraps table data in a long-form PSI section header and appends
// its CRC.
func section(tableID byte, idExt uint16, body []byte) []byte {
	length := 5 + len(body) + 4
	s := make([]byte, 0, 3+length)
	s = append(s, tableID, 0xB0|byte(length>>8&0x0F), byte(length))
	s = binary.BigEndian.AppendUint16(s, idExt)
	s = append(s, 0xC1, 0x00, 0x00) // version 0, current, section 0 of 0
	s = append(s, body...)
	return binary.BigEndian.AppendUint32(s, crc32MPEG(s))
}

func patSection(pmtPID uint16) []byte {
	body := binary.BigEndian.AppendUint16(nil, programNumber)
	body = binary.BigEndian.AppendUint16(body, 0xE000|pmtPID)
	return section(tableIDPAT, transportStreamID, body)
}

func pmtSection(videoPID uint16, streamType byte) []byte {
	body := binary.BigEndian.AppendUint16(nil, 0xE000|videoPID) // PCR PID
	body = binary.BigEndian.AppendUint16(body, 0xF000)          // no program info
	body = append(body, streamType)
	body = binary.BigEndian.AppendUint16(body, 0xE000|videoPID)
	body = binary.BigEndian.AppendUint16(body, 0xF000)
	return section(tableIDPMT, programNumber, body)
}

// psiPayload prefixes a section with a zero pointer field.
func psiPayload(s []byte) []byte {
	return append([]byte{0}, s...)
}

// readSection returns the first section of a PSI payload after checking
// its CRC.
func readSection(payload []byte, tableID byte) ([]byte, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("mpegts: empty PSI payload")
	}
	off := 1 + int(payload[0])
	if off+3 > len(payload) {
		return nil, fmt.Errorf("mpegts: PSI pointer field out of range")
	}
	if payload[off] != tableID {
		return nil, fmt.Errorf("mpegts: table id 0x%02X, want 0x%02X", payload[off], tableID)
	}
	end := off + 3 + (int(payload[off+1]&0x0F)<<8 | int(payload[off+2]))
	if end > len(payload) {
		return nil, fmt.Errorf("mpegts: section truncated")
	}
	s := payload[off:end]
	if len(s) < 12 {
		return nil, fmt.Errorf("mpegts: section too short")
	}
	if err := checkCRC(s); err != nil {
		return nil, err
	}
	return s, nil
}

// parsePAT returns the PMT PID of every program except the NIT entry.
func parsePAT(payload []byte) ([]uint16, error) {
	s, err := readSection(payload, tableIDPAT)
	if err != nil {
		return nil, fmt.Errorf("mpegts: PAT: %w", err)
	}
	var pids []uint16
	for i := 8; i+4 <= len(s)-4; i += 4 {
		if binary.BigEndian.Uint16(s[i:]) == 0 {
			continue
		}
		pids = append(pids, binary.BigEndian.Uint16(s[i+2:])&0x1FFF)
	}
	return pids, nil
}

// parsePMT returns the elementary PIDs of a program mapped to their
// stream types.
func parsePMT(payload []byte) (map[uint16]byte, error) {
	s, err := readSection(payload, tableIDPMT)
	if err != nil {
		return nil, fmt.Errorf("mpegts: PMT: %w", err)
	}
	if len(s) < 16 {
		return nil, fmt.Errorf("mpegts: PMT too short")
	}
	streams := make(map[uint16]byte)
	off := 12 + int(binary.BigEndian.Uint16(s[10:])&0x0FFF)
	for off+5 <= len(s)-4 {
		pid := binary.BigEndian.Uint16(s[off+1:]) & 0x1FFF
		streams[pid] = s[off]
		off += 5 + int(binary.BigEndian.Uint16(s[off+3:])&0x0FFF)
	}
	return streams, nil
}
