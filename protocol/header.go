package protocol

import (
	"encoding/binary"
	"errors"
)

// 帧头为可变长度的 LenFlags（大端）：
//
//	短头 2B: bit15 Compressed | bit14 Batched | bit13 Ext=0 | bit12..0 Len
//	长头 4B: bit31 Compressed | bit30 Batched | bit29 Ext=1 | bit28..0 Len
//
// 非批量帧在头之后紧跟 2B 的 Op，Len 不含 Op；批量帧没有 Op 字段。
// Batched 隐含 Compressed。

const (
	ShortHeaderLen = 2
	LongHeaderLen  = 4

	shortMaxLen = 1<<13 - 1
	// MaxLen 为单帧 payload 的编码上限
	MaxLen = 1<<29 - 1
)

var (
	ErrShortHeader = errors.New("protocol: header too short")
	ErrLength      = errors.New("protocol: length out of range")
)

// Header 为解码后的帧头
type Header struct {
	Len        int
	Compressed bool
	Batched    bool
}

// HeaderLen 返回编码 n 字节 payload 需要的头长度
func HeaderLen(n int) int {
	if n <= shortMaxLen {
		return ShortHeaderLen
	}
	return LongHeaderLen
}

// AppendHeader 追加帧头
func AppendHeader(dst []byte, h Header) ([]byte, error) {
	if h.Len < 0 || h.Len > MaxLen {
		return dst, ErrLength
	}
	compressed := h.Compressed || h.Batched
	if h.Len <= shortMaxLen {
		v := uint16(h.Len)
		if compressed {
			v |= 1 << 15
		}
		if h.Batched {
			v |= 1 << 14
		}
		return binary.BigEndian.AppendUint16(dst, v), nil
	}
	v := uint32(1<<29) | uint32(h.Len)
	if compressed {
		v |= 1 << 31
	}
	if h.Batched {
		v |= 1 << 30
	}
	return binary.BigEndian.AppendUint32(dst, v), nil
}

// ParseHeader 解码帧头，返回头部占用的字节数
func ParseHeader(b []byte) (Header, int, error) {
	if len(b) < ShortHeaderLen {
		return Header{}, 0, ErrShortHeader
	}
	v16 := binary.BigEndian.Uint16(b)
	if v16&(1<<13) == 0 {
		return Header{
			Len:        int(v16 & shortMaxLen),
			Compressed: v16&(1<<15) != 0,
			Batched:    v16&(1<<14) != 0,
		}, ShortHeaderLen, nil
	}
	if len(b) < LongHeaderLen {
		return Header{}, 0, ErrShortHeader
	}
	v32 := binary.BigEndian.Uint32(b)
	return Header{
		Len:        int(v32 & MaxLen),
		Compressed: v32&(1<<31) != 0,
		Batched:    v32&(1<<30) != 0,
	}, LongHeaderLen, nil
}

// extended 报告首字节是否声明长头
func extended(first byte) bool { return first&(1<<5) != 0 }
