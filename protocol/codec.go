package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Op 标识帧的用途
type Op = uint16

const (
	OpData Op = iota + 1
	OpPing
	OpPong
	OpError
)

// Frame 为一条消息
type Frame struct {
	Op      Op
	Payload []byte
}

var (
	ErrTooLarge = errors.New("protocol: frame exceeds limit")
	ErrCorrupt  = errors.New("protocol: corrupt batch")
)

// AppendFrame 追加一个非批量帧；compressed 为 true 时 payload 以 zstd 压缩
func AppendFrame(dst []byte, f Frame, compressed bool) ([]byte, error) {
	body := f.Payload
	if compressed {
		body = compress(nil, f.Payload)
	}
	dst, err := AppendHeader(dst, Header{Len: len(body), Compressed: compressed})
	if err != nil {
		return dst, err
	}
	dst = binary.BigEndian.AppendUint16(dst, f.Op)
	return append(dst, body...), nil
}

// AppendBatch 将多条消息编码为一个批量帧。
// 批前镜像：uvarint(count) + 每条 [Op(2B) + uvarint(len) + payload]，整体压缩。
func AppendBatch(dst []byte, frames []Frame) ([]byte, error) {
	var pre bytes.Buffer
	pre.Write(binary.AppendUvarint(nil, uint64(len(frames))))
	for _, f := range frames {
		pre.Write(binary.BigEndian.AppendUint16(nil, f.Op))
		pre.Write(binary.AppendUvarint(nil, uint64(len(f.Payload))))
		pre.Write(f.Payload)
	}
	body := compress(nil, pre.Bytes())
	dst, err := AppendHeader(dst, Header{Len: len(body), Batched: true})
	if err != nil {
		return dst, err
	}
	return append(dst, body...), nil
}

func splitBatch(pre []byte) ([]Frame, error) {
	r := bytes.NewReader(pre)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if n > uint64(len(pre)) {
		return nil, ErrCorrupt
	}
	frames := make([]Frame, 0, n)
	for i := uint64(0); i < n; i++ {
		var op [2]byte
		if _, err := io.ReadFull(r, op[:]); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		size, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if size > uint64(r.Len()) {
			return nil, ErrCorrupt
		}
		f := Frame{Op: binary.BigEndian.Uint16(op[:])}
		if size > 0 {
			f.Payload = make([]byte, size)
			_, _ = io.ReadFull(r, f.Payload)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// Writer 将帧写入底层流；payload 不小于阈值时压缩
type Writer struct {
	w         io.Writer
	threshold int
	buf       []byte
}

// NewWriter threshold <= 0 表示从不压缩
func NewWriter(w io.Writer, threshold int) *Writer {
	return &Writer{w: w, threshold: threshold}
}

func (w *Writer) compressed(n int) bool { return w.threshold > 0 && n >= w.threshold }

func (w *Writer) WriteFrame(f Frame) error {
	var err error
	w.buf, err = AppendFrame(w.buf[:0], f, w.compressed(len(f.Payload)))
	if err != nil {
		return err
	}
	_, err = w.w.Write(w.buf)
	return err
}

func (w *Writer) WriteBatch(frames []Frame) error {
	var err error
	w.buf, err = AppendBatch(w.buf[:0], frames)
	if err != nil {
		return err
	}
	_, err = w.w.Write(w.buf)
	return err
}

// Reader 从流中逐帧读取，批量帧被展开为多条
type Reader struct {
	r       *bufio.Reader
	limit   int
	pending []Frame
}

// NewReader limit <= 0 时使用 MaxLen
func NewReader(r io.Reader, limit int) *Reader {
	if limit <= 0 || limit > MaxLen {
		limit = MaxLen
	}
	return &Reader{r: bufio.NewReader(r), limit: limit}
}

// ReadFrame 返回下一条消息；流在帧边界结束时返回 io.EOF，帧中途结束返回 io.ErrUnexpectedEOF
func (r *Reader) ReadFrame() (Frame, error) {
	if len(r.pending) > 0 {
		f := r.pending[0]
		r.pending = r.pending[1:]
		return f, nil
	}
	var hb [LongHeaderLen]byte
	if _, err := io.ReadFull(r.r, hb[:ShortHeaderLen]); err != nil {
		return Frame{}, err
	}
	if extended(hb[0]) {
		if _, err := io.ReadFull(r.r, hb[ShortHeaderLen:]); err != nil {
			return Frame{}, unexpected(err)
		}
	}
	h, _, err := ParseHeader(hb[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Len > r.limit {
		return Frame{}, fmt.Errorf("%w: %d > %d", ErrTooLarge, h.Len, r.limit)
	}
	if h.Batched {
		body := make([]byte, h.Len)
		if _, err := io.ReadFull(r.r, body); err != nil {
			return Frame{}, unexpected(err)
		}
		pre, err := decompress(nil, body)
		if err != nil {
			return Frame{}, err
		}
		frames, err := splitBatch(pre)
		if err != nil {
			return Frame{}, err
		}
		if len(frames) == 0 {
			return r.ReadFrame()
		}
		r.pending = frames[1:]
		return frames[0], nil
	}
	body := make([]byte, 2+h.Len)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return Frame{}, unexpected(err)
	}
	f := Frame{Op: binary.BigEndian.Uint16(body), Payload: body[2:]}
	if h.Compressed {
		if f.Payload, err = decompress(nil, f.Payload); err != nil {
			return Frame{}, err
		}
		if len(f.Payload) > r.limit {
			return Frame{}, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(f.Payload), r.limit)
		}
	}
	return f, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
