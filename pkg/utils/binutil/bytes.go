package binutil

// ParseUint16 解析 AB
func ParseUint16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

// ParseUint32 解析 ABCD
func ParseUint32(b []byte) uint32 {
	return uint32(b[0])<<24 |
		uint32(b[1])<<16 |
		uint32(b[2])<<8 |
		uint32(b[3])
}

// ParseUint64 解析 ABCD EFGH
func ParseUint64(b []byte) uint64 {
	return uint64(ParseUint32(b[0:4]))<<32 | uint64(ParseUint32(b[4:8]))
}

func WriteUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func WriteUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func WriteUint64(b []byte, v uint64) {
	WriteUint32(b[0:4], uint32(v>>32))
	WriteUint32(b[4:8], uint32(v))
}

// SwapBytesInWords AB CD -> BA DC, in place
func SwapBytesInWords(b []byte) {
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
}

// ReverseWords AB CD EF GH -> GH EF CD AB, in place
func ReverseWords(b []byte) {
	words := len(b) / 2
	for i, j := 0, words-1; i < j; i, j = i+1, j-1 {
		b[2*i], b[2*j] = b[2*j], b[2*i]
		b[2*i+1], b[2*j+1] = b[2*j+1], b[2*i+1]
	}
}

// BitAt 按 modbus 位序读取第 n 位, 每个字节低位在前
func BitAt(b []byte, n int) bool {
	return b[n/8]&(1<<(n%8)) != 0
}

func Dup(p []byte) []byte {
	if p == nil {
		return nil
	}
	return append(make([]byte, 0, len(p)), p...)
}
