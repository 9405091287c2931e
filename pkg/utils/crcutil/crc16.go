package crcutil

// CheckCrc16sum 计算 modbus crc16
// polynomial 0xA001 (reflected 0x8005), initial value 0xFFFF
func CheckCrc16sum(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// AppendCrc16 appends the checksum of frame, low byte first.
func AppendCrc16(frame []byte) []byte {
	sum := CheckCrc16sum(frame)
	return append(frame, byte(sum), byte(sum>>8))
}

// ValidCrc16 reports whether the last two bytes of frame are the checksum of the bytes before them.
func ValidCrc16(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	n := len(frame) - 2
	sum := CheckCrc16sum(frame[:n])
	return frame[n] == byte(sum) && frame[n+1] == byte(sum>>8)
}
