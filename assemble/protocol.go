package assemble

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// Wire format. Every frame is a bencoded dictionary `{v, n, a}`: a
// 4-byte version tag, a 1-byte name, and a nested argument
// dictionary. There is no bencode library in this codebase's
// dependency set, so the handful of primitives the four frame kinds
// need (byte strings, integers, dictionaries with sorted keys) are
// implemented directly below rather than pulled in as a new, otherwise
// unused, third-party parser.

const versionLength = 4

// frameVersion is the 4-byte `v` tag: a one-letter kind followed by
// major/minor/tiny. Only the kind byte and the major byte participate
// in version matching.
type frameVersion [versionLength]byte

func (v frameVersion) matches(other frameVersion) bool {
	return v[0] == other[0] && v[1] == other[1]
}

func (v frameVersion) bytes() []byte {
	return v[:]
}

const (
	kindSegment  = 'S'
	kindIndex    = 'I'
	kindRelayURI = 'U'
	kindRelayMsg = 'M'
)

var (
	segmentVersion  = frameVersion{kindSegment, 1, 0, 0}
	indexVersion    = frameVersion{kindIndex, 1, 0, 0}
	relayURIVersion = frameVersion{kindRelayURI, 1, 0, 0}
	relayMsgVersion = frameVersion{kindRelayMsg, 1, 0, 0}
)

// Frame names, as carried in the wire `n` field.
const (
	nameSegment  = "s"
	nameIndex    = "i"
	nameRelayURI = "u"
	nameRelayMsg = "m"
)

// MTUs, in bytes, from spec.
const (
	BlobMTU        = 45000
	BlobSegMTU     = 950
	RelayMsgMTU    = 950
	IndexHashCount = 45
	hashSize       = 20
	pubKeySize     = 32
)

// Frame is implemented by the four decoded wire frame kinds. It exists
// so the Getter, Putter, and Relayer can accept "whatever validly
// decoded" and switch on the concrete type once, rather than threading
// named-return tuples through every call site.
type Frame interface {
	frameName() string
	encode() []byte
}

// SegmentFrame carries one blob fragment.
type SegmentFrame struct {
	Payload []byte
}

func (SegmentFrame) frameName() string { return nameSegment }

func (f SegmentFrame) encode() []byte {
	return encodeFrame(segmentVersion, nameSegment, bdict{
		"v": f.Payload,
	})
}

// IndexFrame carries the ordered list of segment hashes for one blob.
type IndexFrame struct {
	Hashes [][hashSize]byte
}

func (IndexFrame) frameName() string { return nameIndex }

func (f IndexFrame) encode() []byte {
	buf := make([]byte, 0, len(f.Hashes)*hashSize)
	for _, h := range f.Hashes {
		buf = append(buf, h[:]...)
	}
	return encodeFrame(indexVersion, nameIndex, bdict{
		"h": buf,
	})
}

// RelayURIFrame announces that the sender has published a blob under
// uri at ts; the receiver may choose to fetch it.
type RelayURIFrame struct {
	Sender [pubKeySize]byte
	URI    [hashSize]byte
	Ts     int64
}

func (RelayURIFrame) frameName() string { return nameRelayURI }

func (f RelayURIFrame) encode() []byte {
	return encodeFrame(relayURIVersion, nameRelayURI, bdict{
		"s":  f.Sender[:],
		"u":  f.URI[:],
		"ts": f.Ts,
	})
}

// RelayMsgFrame carries an opaque relay message.
type RelayMsgFrame struct {
	Message []byte
}

func (RelayMsgFrame) frameName() string { return nameRelayMsg }

func (f RelayMsgFrame) encode() []byte {
	return encodeFrame(relayMsgVersion, nameRelayMsg, bdict{
		"m": f.Message,
	})
}

// DecodeFrame parses raw into one of the four frame kinds, returning
// the matching ErrorCode when the bytes do not constitute a valid,
// version-matched frame.
func DecodeFrame(raw []byte) (Frame, ErrorCode) {
	val, rest, err := bdecode(raw)
	if err != nil || len(rest) != 0 {
		return nil, ErrAssembleProtocolFormatError
	}
	top, ok := val.(bdict)
	if !ok {
		return nil, ErrAssembleProtocolFormatError
	}

	verRaw, ok := top["v"].([]byte)
	if !ok || len(verRaw) != versionLength {
		return nil, ErrAssembleVersionError
	}
	var ver frameVersion
	copy(ver[:], verRaw)

	nameRaw, ok := top["n"].([]byte)
	if !ok || len(nameRaw) != 1 {
		return nil, ErrAssembleNameError
	}
	name := string(nameRaw)

	argsRaw, ok := top["a"].(bdict)
	if !ok {
		return nil, ErrAssembleProtocolFormatError
	}

	switch name {
	case nameSegment:
		if !ver.matches(segmentVersion) {
			return nil, ErrAssembleProtocolVerMismatch
		}
		v, ok := argsRaw["v"].([]byte)
		if !ok || len(v) > BlobSegMTU {
			return nil, ErrAssembleProtocolFormatError
		}
		payload := make([]byte, len(v))
		copy(payload, v)
		return SegmentFrame{Payload: payload}, NoError

	case nameIndex:
		if !ver.matches(indexVersion) {
			return nil, ErrAssembleProtocolVerMismatch
		}
		h, ok := argsRaw["h"].([]byte)
		if !ok || len(h)%hashSize != 0 {
			return nil, ErrAssembleProtocolFormatError
		}
		hashes := make([][hashSize]byte, len(h)/hashSize)
		for i := range hashes {
			copy(hashes[i][:], h[i*hashSize:(i+1)*hashSize])
		}
		return IndexFrame{Hashes: hashes}, NoError

	case nameRelayURI:
		if !ver.matches(relayURIVersion) {
			return nil, ErrAssembleProtocolVerMismatch
		}
		s, ok := argsRaw["s"].([]byte)
		if !ok || len(s) != pubKeySize {
			return nil, ErrAssembleProtocolFormatError
		}
		u, ok := argsRaw["u"].([]byte)
		if !ok || len(u) != hashSize {
			return nil, ErrAssembleProtocolFormatError
		}
		ts, ok := argsRaw["ts"].(int64)
		if !ok {
			return nil, ErrAssembleProtocolFormatError
		}
		var frame RelayURIFrame
		copy(frame.Sender[:], s)
		copy(frame.URI[:], u)
		frame.Ts = ts
		return frame, NoError

	case nameRelayMsg:
		if !ver.matches(relayMsgVersion) {
			return nil, ErrAssembleProtocolVerMismatch
		}
		m, ok := argsRaw["m"].([]byte)
		if !ok || len(m) > RelayMsgMTU {
			return nil, ErrAssembleProtocolFormatError
		}
		msg := make([]byte, len(m))
		copy(msg, m)
		return RelayMsgFrame{Message: msg}, NoError

	default:
		return nil, ErrAssembleNameError
	}
}

func encodeFrame(v frameVersion, name string, args bdict) []byte {
	return bencode(bdict{
		"v": v.bytes(),
		"n": []byte(name),
		"a": args,
	})
}

// --- minimal bencode support ---
//
// bdict is the only composite value this wire format needs: a
// dictionary whose values are either byte strings ([]byte), integers
// (int64), or nested dictionaries (bdict).

type bdict map[string]interface{}

func bencode(v interface{}) []byte {
	var buf bytes.Buffer
	encodeValue(&buf, v)
	return buf.Bytes()
}

func encodeValue(buf *bytes.Buffer, v interface{}) {
	switch val := v.(type) {
	case []byte:
		buf.WriteString(strconv.Itoa(len(val)))
		buf.WriteByte(':')
		buf.Write(val)
	case int64:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(val, 10))
		buf.WriteByte('e')
	case bdict:
		buf.WriteByte('d')
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			encodeValue(buf, []byte(k))
			encodeValue(buf, val[k])
		}
		buf.WriteByte('e')
	default:
		panic(fmt.Sprintf("assemble: unsupported bencode value %T", v))
	}
}

func bdecode(data []byte) (interface{}, []byte, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("assemble: empty bencode input")
	}
	switch {
	case data[0] == 'd':
		return bdecodeDict(data[1:])
	case data[0] == 'i':
		return bdecodeInt(data[1:])
	case data[0] >= '0' && data[0] <= '9':
		return bdecodeString(data)
	default:
		return nil, nil, fmt.Errorf("assemble: invalid bencode tag %q", data[0])
	}
}

func bdecodeDict(data []byte) (bdict, []byte, error) {
	d := make(bdict)
	for {
		if len(data) == 0 {
			return nil, nil, fmt.Errorf("assemble: truncated dict")
		}
		if data[0] == 'e' {
			return d, data[1:], nil
		}
		keyVal, rest, err := bdecodeString(data)
		if err != nil {
			return nil, nil, err
		}
		valVal, rest2, err := bdecode(rest)
		if err != nil {
			return nil, nil, err
		}
		d[string(keyVal)] = valVal
		data = rest2
	}
}

func bdecodeInt(data []byte) (int64, []byte, error) {
	idx := bytes.IndexByte(data, 'e')
	if idx < 0 {
		return 0, nil, fmt.Errorf("assemble: unterminated integer")
	}
	n, err := strconv.ParseInt(string(data[:idx]), 10, 64)
	if err != nil {
		return 0, nil, err
	}
	return n, data[idx+1:], nil
}

func bdecodeString(data []byte) ([]byte, []byte, error) {
	idx := bytes.IndexByte(data, ':')
	if idx < 0 {
		return nil, nil, fmt.Errorf("assemble: malformed length-prefixed string")
	}
	n, err := strconv.Atoi(string(data[:idx]))
	if err != nil || n < 0 {
		return nil, nil, fmt.Errorf("assemble: invalid string length")
	}
	rest := data[idx+1:]
	if len(rest) < n {
		return nil, nil, fmt.Errorf("assemble: truncated string")
	}
	return rest[:n], rest[n:], nil
}
