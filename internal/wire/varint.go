package wire

import (
	"encoding/binary"
	"fmt"
)

// CompactSize (varint) encoding boundaries.
const (
	varint16  = 0xFD
	varint32  = 0xFE
	varint64  = 0xFF
	maxUint16 = 0xFFFF
	maxUint32 = 0xFFFFFFFF
)

// AppendVarint appends the minimal CompactSize encoding of n to dst.
func AppendVarint(dst []byte, n uint64) []byte {
	switch {
	case n < varint16:
		return append(dst, byte(n))
	case n <= maxUint16:
		dst = append(dst, varint16)
		return binary.LittleEndian.AppendUint16(dst, uint16(n))
	case n <= maxUint32:
		dst = append(dst, varint32)
		return binary.LittleEndian.AppendUint32(dst, uint32(n))
	default:
		dst = append(dst, varint64)
		return binary.LittleEndian.AppendUint64(dst, n)
	}
}

// EncodeVarint returns the minimal CompactSize encoding of n.
func EncodeVarint(n uint64) []byte {
	return AppendVarint(nil, n)
}

// ReadVarint decodes a CompactSize value from the front of buf, returning
// the value and the number of bytes consumed. Non-minimal encodings are
// rejected so that decode is the exact inverse of encode.
func ReadVarint(buf []byte) (uint64, int, error) {
	if len(buf) == 0 {
		return 0, 0, fmt.Errorf("varint: empty buffer")
	}

	switch buf[0] {
	case varint16:
		if len(buf) < 3 {
			return 0, 0, fmt.Errorf("varint: short buffer for u16 form")
		}
		n := uint64(binary.LittleEndian.Uint16(buf[1:3]))
		if n < varint16 {
			return 0, 0, fmt.Errorf("varint: non-minimal u16 encoding of %d", n)
		}
		return n, 3, nil
	case varint32:
		if len(buf) < 5 {
			return 0, 0, fmt.Errorf("varint: short buffer for u32 form")
		}
		n := uint64(binary.LittleEndian.Uint32(buf[1:5]))
		if n <= maxUint16 {
			return 0, 0, fmt.Errorf("varint: non-minimal u32 encoding of %d", n)
		}
		return n, 5, nil
	case varint64:
		if len(buf) < 9 {
			return 0, 0, fmt.Errorf("varint: short buffer for u64 form")
		}
		n := binary.LittleEndian.Uint64(buf[1:9])
		if n <= maxUint32 {
			return 0, 0, fmt.Errorf("varint: non-minimal u64 encoding of %d", n)
		}
		return n, 9, nil
	default:
		return uint64(buf[0]), 1, nil
	}
}

// AppendVarString appends a varstring (CompactSize length followed by the
// raw bytes) to dst.
func AppendVarString(dst []byte, s string) []byte {
	dst = AppendVarint(dst, uint64(len(s)))
	return append(dst, s...)
}

// ReadVarString decodes a varstring from the front of buf, returning the
// string and the number of bytes consumed.
func ReadVarString(buf []byte) (string, int, error) {
	n, consumed, err := ReadVarint(buf)
	if err != nil {
		return "", 0, err
	}
	if uint64(len(buf)-consumed) < n {
		return "", 0, fmt.Errorf("varstring: length %d exceeds buffer", n)
	}
	return string(buf[consumed : consumed+int(n)]), consumed + int(n), nil
}
