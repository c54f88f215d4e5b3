package mpegts

import "testing"

func FuzzParsePacket(f *testing.F) {
	pkt := make([]byte, PacketSize)
	pkt[0], pkt[1], pkt[3] = syncByte, 0x40, 0x10
	f.Add(pkt)

	var cc uint8
	f.Add(packetize(nil, []byte{1, 2, 3}, VideoPID, &cc, adaptation{pcr: 2700, randomAccess: true}))

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) != PacketSize {
			return
		}
		parsePacket(data)
	})
}

func FuzzParsePES(f *testing.F) {
	f.Add(appendPESHeader(nil, 9000, 9000))
	f.Add(appendPESHeader([]byte(nil), 12000, 9000))
	f.Fuzz(func(t *testing.T, data []byte) {
		parsePES(data)
	})
}

func FuzzParsePSI(f *testing.F) {
	f.Add(psiPayload(patSection(PMTPID)))
	f.Add(psiPayload(pmtSection(VideoPID, 0x1B)))
	f.Fuzz(func(t *testing.T, data []byte) {
		parsePAT(data)
		parsePMT(data)
	})
}
