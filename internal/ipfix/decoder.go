package ipfix

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/user/pskwatch/internal/geo"
	"github.com/user/pskwatch/internal/model"
)

var be = binary.BigEndian

// DecodeError describes malformed input. Offset is relative to the start
// of the datagram.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ipfix: %s at offset %d", e.Reason, e.Offset)
}

var errRecordTruncated = errors.New("record truncated")

// Decoder turns IPFIX messages into receptions. Templates learned from one
// message apply to later messages of the same observation domain.
type Decoder struct {
	cache *TemplateCache
}

// NewDecoder creates a decoder with an empty template cache.
func NewDecoder() *Decoder {
	return &Decoder{cache: NewTemplateCache()}
}

// Templates returns the number of cached templates.
func (d *Decoder) Templates() int {
	return d.cache.Len()
}

// header is the fixed message header.
type header struct {
	length     int
	exportTime time.Time
	sequence   uint32
	domain     uint32
}

// receiverContext carries receiver fields announced by a receiver-only
// record to the sender records that follow it in the same message.
type receiverContext struct {
	callsign string
	locator  string
	position *geo.Point
	software string
}

type messageState struct {
	header
	receiver receiverContext
}

// Decode parses one datagram. It never panics; the returned error is a
// diagnostic and the receptions decoded before and after a fault are
// still returned.
func (d *Decoder) Decode(data []byte) ([]model.Reception, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < headerLen {
		return nil, &DecodeError{Offset: 0, Reason: fmt.Sprintf("short message header (%d bytes)", len(data))}
	}
	if v := be.Uint16(data[0:2]); v != Version {
		return nil, &DecodeError{Offset: 0, Reason: fmt.Sprintf("unsupported version %d", v)}
	}

	var errs []error
	h := header{
		length:     int(be.Uint16(data[2:4])),
		exportTime: time.Unix(int64(be.Uint32(data[4:8])), 0).UTC(),
		sequence:   be.Uint32(data[8:12]),
		domain:     be.Uint32(data[12:16]),
	}
	if h.length < headerLen {
		return nil, &DecodeError{Offset: 2, Reason: fmt.Sprintf("invalid message length %d", h.length)}
	}
	if h.length > len(data) {
		errs = append(errs, &DecodeError{Offset: 2, Reason: fmt.Sprintf("message length %d exceeds datagram size %d", h.length, len(data))})
		h.length = len(data)
	}
	msg := data[:h.length]
	st := &messageState{header: h}

	var out []model.Reception
	off := headerLen
	for off+setHeaderLen <= len(msg) {
		setID := be.Uint16(msg[off:])
		setLen := int(be.Uint16(msg[off+2:]))
		if setLen < setHeaderLen {
			errs = append(errs, &DecodeError{Offset: off + 2, Reason: fmt.Sprintf("invalid set length %d", setLen)})
			break
		}
		if off+setLen > len(msg) {
			errs = append(errs, &DecodeError{Offset: off + 2, Reason: fmt.Sprintf("set %d truncated: length %d, %d bytes remain", setID, setLen, len(msg)-off)})
			break
		}
		body := msg[off+setHeaderLen : off+setLen]
		base := off + setHeaderLen

		var err error
		switch {
		case setID == TemplateSetID:
			err = d.decodeTemplateSet(h.domain, body, base, false)
		case setID == OptionsTemplateSetID:
			err = d.decodeTemplateSet(h.domain, body, base, true)
		case setID >= MinDataSetID:
			var recs []model.Reception
			recs, err = d.decodeDataSet(st, setID, body, base)
			out = append(out, recs...)
		default:
			err = &DecodeError{Offset: off, Reason: fmt.Sprintf("reserved set id %d", setID)}
		}
		if err != nil {
			errs = append(errs, err)
		}
		off += setLen
	}
	if off < len(msg) {
		errs = append(errs, &DecodeError{Offset: off, Reason: fmt.Sprintf("%d trailing bytes", len(msg)-off)})
	}

	return out, errors.Join(errs...)
}

func (d *Decoder) decodeTemplateSet(domain uint32, body []byte, base int, options bool) error {
	off := 0
	for len(body)-off >= 4 {
		start := off
		id := be.Uint16(body[off:])
		count := be.Uint16(body[off+2:])
		off += 4

		if count == 0 {
			if id == TemplateSetID || id == OptionsTemplateSetID {
				d.cache.WithdrawAll(domain, options)
			} else {
				d.cache.Withdraw(domain, id)
			}
			continue
		}
		if id < MinDataSetID {
			return &DecodeError{Offset: base + start, Reason: fmt.Sprintf("invalid template id %d", id)}
		}

		t := Template{ID: id, Fields: make([]FieldSpec, 0, count)}
		if options {
			if len(body)-off < 2 {
				return &DecodeError{Offset: base + start, Reason: "options template truncated"}
			}
			t.ScopeCount = be.Uint16(body[off:])
			off += 2
			if t.ScopeCount == 0 || t.ScopeCount > count {
				return &DecodeError{Offset: base + start, Reason: fmt.Sprintf("invalid scope field count %d", t.ScopeCount)}
			}
		}

		for i := 0; i < int(count); i++ {
			if len(body)-off < 4 {
				return &DecodeError{Offset: base + start, Reason: fmt.Sprintf("template %d truncated", id)}
			}
			raw := be.Uint16(body[off:])
			spec := FieldSpec{
				Key:    FieldKey{ID: raw &^ 0x8000},
				Length: be.Uint16(body[off+2:]),
			}
			off += 4
			if raw&0x8000 != 0 {
				if len(body)-off < 4 {
					return &DecodeError{Offset: base + start, Reason: fmt.Sprintf("template %d truncated", id)}
				}
				spec.Key.Enterprise = be.Uint32(body[off:])
				off += 4
			}
			t.Fields = append(t.Fields, spec)
		}
		d.cache.Put(domain, t)
	}
	return nil
}

func (d *Decoder) decodeDataSet(st *messageState, setID uint16, body []byte, base int) ([]model.Reception, error) {
	t, ok := d.cache.Get(st.domain, setID)
	if !ok {
		return nil, &DecodeError{Offset: base - setHeaderLen, Reason: fmt.Sprintf("data set references unknown template %d", setID)}
	}
	minLen := t.minRecordLen()
	if minLen == 0 {
		return nil, &DecodeError{Offset: base - setHeaderLen, Reason: fmt.Sprintf("template %d has empty records", setID)}
	}

	var out []model.Reception
	off := 0
	for len(body)-off >= minLen {
		f, n, err := decodeRecord(t, body[off:])
		if err != nil {
			return out, &DecodeError{Offset: base + off, Reason: err.Error()}
		}
		off += n
		if rec, ok := st.apply(f); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// fields maps known elements of one record to their raw bytes.
type fields map[FieldKey][]byte

func decodeRecord(t Template, b []byte) (fields, int, error) {
	f := make(fields, len(t.Fields))
	off := 0
	for _, spec := range t.Fields {
		n := int(spec.Length)
		if spec.Length == VariableLength {
			if off >= len(b) {
				return nil, 0, errRecordTruncated
			}
			n = int(b[off])
			off++
			if n == 255 {
				if off+2 > len(b) {
					return nil, 0, errRecordTruncated
				}
				n = int(be.Uint16(b[off:]))
				off += 2
			}
		}
		if off+n > len(b) {
			return nil, 0, errRecordTruncated
		}
		if known[spec.Key] {
			f[spec.Key] = b[off : off+n]
		}
		off += n
	}
	return f, off, nil
}

func (f fields) str(k FieldKey) string {
	b, ok := f[k]
	if !ok {
		return ""
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

func (f fields) unsigned(k FieldKey) (uint64, bool) {
	b, ok := f[k]
	if !ok || len(b) == 0 || len(b) > 8 {
		return 0, false
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, true
}

func (f fields) signed(k FieldKey) (int64, bool) {
	u, ok := f.unsigned(k)
	if !ok {
		return 0, false
	}
	shift := 64 - 8*uint(len(f[k]))
	return int64(u<<shift) >> shift, true
}

func (f fields) float(k FieldKey) (float64, bool) {
	b, ok := f[k]
	if !ok {
		return 0, false
	}
	switch len(b) {
	case 4:
		return float64(math.Float32frombits(be.Uint32(b))), true
	case 8:
		return math.Float64frombits(be.Uint64(b)), true
	}
	return 0, false
}

func (f fields) point(lat, lon FieldKey) *geo.Point {
	la, ok1 := f.float(lat)
	lo, ok2 := f.float(lon)
	if !ok1 || !ok2 {
		return nil
	}
	p := geo.Point{Lat: la, Lon: lo}
	if !p.Valid() {
		return nil
	}
	return &p
}

// position prefers explicit coordinates and falls back to the locator.
func position(explicit *geo.Point, locator string) *geo.Point {
	if explicit != nil {
		return explicit
	}
	if locator == "" {
		return nil
	}
	p, err := geo.FromLocator(locator)
	if err != nil {
		return nil
	}
	return &p
}

// apply turns one record into a reception, or records receiver context
// when the record has no sender.
func (st *messageState) apply(f fields) (model.Reception, bool) {
	sender := f.str(SenderCallsign)
	if rx := f.str(ReceiverCallsign); rx != "" {
		loc := f.str(ReceiverLocator)
		ctx := receiverContext{
			callsign: rx,
			locator:  loc,
			position: position(f.point(ReceiverLatitude, ReceiverLongitude), loc),
			software: f.str(DecoderSoftware),
		}
		if sender == "" {
			st.receiver = ctx
			return model.Reception{}, false
		}
		return st.reception(f, sender, ctx), true
	}
	if sender == "" {
		return model.Reception{}, false
	}
	return st.reception(f, sender, st.receiver), true
}

func (st *messageState) reception(f fields, sender string, rx receiverContext) model.Reception {
	txLoc := f.str(SenderLocator)
	r := model.Reception{
		TxCallsign:      sender,
		RxCallsign:      rx.callsign,
		Mode:            f.str(Mode),
		TxLocator:       txLoc,
		RxLocator:       rx.locator,
		TxPosition:      position(f.point(SenderLatitude, SenderLongitude), txLoc),
		RxPosition:      rx.position,
		DecoderSoftware: rx.software,
		Timestamp:       st.exportTime,
	}
	if sw := f.str(DecoderSoftware); sw != "" {
		r.DecoderSoftware = sw
	}
	if v, ok := f.unsigned(Frequency); ok {
		r.Frequency = int64(v)
	}
	if v, ok := f.signed(SNR); ok {
		snr := int(v)
		r.SNR = &snr
	}
	if v, ok := f.unsigned(FlowStartMilliseconds); ok {
		r.Timestamp = time.UnixMilli(int64(v)).UTC()
	} else if v, ok := f.unsigned(FlowStartSeconds); ok {
		r.Timestamp = time.Unix(int64(v), 0).UTC()
	}
	return r
}
