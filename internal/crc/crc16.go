// internal/crc/crc16.go
package crc

// Modbus computes the CRC-16 used by Modbus RTU framing: initial value
// 0xFFFF, reflected polynomial 0xA001, no final XOR. Every byte of data
// participates, including the bus address.
func Modbus(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// Append returns frame with its CRC appended low byte first, the order the
// checksum travels on the wire.
func Append(frame []byte) []byte {
	sum := Modbus(frame)
	return append(frame, byte(sum&0xFF), byte(sum>>8))
}

// Check reports whether the trailing two bytes of frame are the valid CRC of
// everything before them. Frames shorter than the checksum itself fail.
func Check(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	body := frame[:len(frame)-2]
	sum := Modbus(body)
	return frame[len(frame)-2] == byte(sum&0xFF) && frame[len(frame)-1] == byte(sum>>8)
}
