package ipfix

import (
	"fmt"
	"math"
	"time"

	"github.com/user/pskwatch/internal/model"
)

// Record holds field values for one data record. Supported value types are
// string, []byte, signed and unsigned integers, float32, float64 and
// time.Time. Missing fields encode as zeros or an empty variable field.
type Record map[FieldKey]any

// Message builds an IPFIX message set by set.
type Message struct {
	ExportTime time.Time
	Sequence   uint32
	Domain     uint32

	sets [][]byte
	err  error
}

// NewMessage starts a message with the given header values.
func NewMessage(exportTime time.Time, sequence, domain uint32) *Message {
	return &Message{ExportTime: exportTime, Sequence: sequence, Domain: domain}
}

// AddTemplates appends a template set.
func (m *Message) AddTemplates(templates ...Template) *Message {
	m.sets = append(m.sets, encodeTemplateSet(TemplateSetID, templates))
	return m
}

// AddOptionsTemplates appends an options template set. Each template's
// ScopeCount must be set.
func (m *Message) AddOptionsTemplates(templates ...Template) *Message {
	m.sets = append(m.sets, encodeTemplateSet(OptionsTemplateSetID, templates))
	return m
}

// Withdraw appends a template set withdrawing the given template ids.
func (m *Message) Withdraw(ids ...uint16) *Message {
	templates := make([]Template, len(ids))
	for i, id := range ids {
		templates[i] = Template{ID: id}
	}
	m.sets = append(m.sets, encodeTemplateSet(TemplateSetID, templates))
	return m
}

// AddRecords appends a data set for t. The first encoding error is kept
// and returned by Bytes.
func (m *Message) AddRecords(t Template, records ...Record) *Message {
	body := make([]byte, 0, 64*len(records))
	for _, r := range records {
		b, err := encodeRecord(t, r)
		if err != nil {
			if m.err == nil {
				m.err = err
			}
			return m
		}
		body = append(body, b...)
	}
	m.sets = append(m.sets, withSetHeader(t.ID, body))
	return m
}

// AddRaw appends a set with an arbitrary id and body.
func (m *Message) AddRaw(setID uint16, body []byte) *Message {
	m.sets = append(m.sets, withSetHeader(setID, body))
	return m
}

// Bytes returns the encoded message.
func (m *Message) Bytes() ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	total := headerLen
	for _, s := range m.sets {
		if len(s) > math.MaxUint16 {
			return nil, fmt.Errorf("ipfix: set of %d bytes exceeds maximum", len(s))
		}
		total += len(s)
	}
	if total > math.MaxUint16 {
		return nil, fmt.Errorf("ipfix: message of %d bytes exceeds maximum", total)
	}

	out := make([]byte, headerLen, total)
	be.PutUint16(out[0:], Version)
	be.PutUint16(out[2:], uint16(total))
	be.PutUint32(out[4:], uint32(m.ExportTime.Unix()))
	be.PutUint32(out[8:], m.Sequence)
	be.PutUint32(out[12:], m.Domain)
	for _, s := range m.sets {
		out = append(out, s...)
	}
	return out, nil
}

func withSetHeader(id uint16, body []byte) []byte {
	out := make([]byte, setHeaderLen, setHeaderLen+len(body))
	be.PutUint16(out[0:], id)
	be.PutUint16(out[2:], uint16(setHeaderLen+len(body)))
	return append(out, body...)
}

func encodeTemplateSet(setID uint16, templates []Template) []byte {
	var body []byte
	for _, t := range templates {
		body = be.AppendUint16(body, t.ID)
		body = be.AppendUint16(body, uint16(len(t.Fields)))
		if setID == OptionsTemplateSetID && len(t.Fields) > 0 {
			body = be.AppendUint16(body, t.ScopeCount)
		}
		for _, f := range t.Fields {
			if f.Key.Enterprise != 0 {
				body = be.AppendUint16(body, f.Key.ID|0x8000)
				body = be.AppendUint16(body, f.Length)
				body = be.AppendUint32(body, f.Key.Enterprise)
			} else {
				body = be.AppendUint16(body, f.Key.ID)
				body = be.AppendUint16(body, f.Length)
			}
		}
	}
	// Pad to a 4-byte boundary.
	for len(body)%4 != 0 {
		body = append(body, 0)
	}
	return withSetHeader(setID, body)
}

func encodeRecord(t Template, r Record) ([]byte, error) {
	var out []byte
	for _, f := range t.Fields {
		raw, err := encodeValue(f, r[f.Key])
		if err != nil {
			return nil, fmt.Errorf("ipfix: field %s: %w", f.Key, err)
		}
		if f.Length == VariableLength {
			if len(raw) < 255 {
				out = append(out, byte(len(raw)))
			} else {
				if len(raw) > math.MaxUint16 {
					return nil, fmt.Errorf("ipfix: field %s: value of %d bytes too long", f.Key, len(raw))
				}
				out = append(out, 255)
				out = be.AppendUint16(out, uint16(len(raw)))
			}
			out = append(out, raw...)
			continue
		}
		fixed := make([]byte, f.Length)
		copy(fixed, raw)
		out = append(out, fixed...)
	}
	return out, nil
}

func encodeValue(f FieldSpec, v any) ([]byte, error) {
	size := int(f.Length)
	if f.Length == VariableLength {
		size = 8
	}
	switch x := v.(type) {
	case nil:
		if f.Length == VariableLength {
			return nil, nil
		}
		return make([]byte, size), nil
	case string:
		return []byte(x), nil
	case []byte:
		return x, nil
	case int:
		return encodeInt(uint64(int64(x)), size)
	case int8:
		return encodeInt(uint64(int64(x)), size)
	case int16:
		return encodeInt(uint64(int64(x)), size)
	case int32:
		return encodeInt(uint64(int64(x)), size)
	case int64:
		return encodeInt(uint64(x), size)
	case uint8:
		return encodeInt(uint64(x), size)
	case uint16:
		return encodeInt(uint64(x), size)
	case uint32:
		return encodeInt(uint64(x), size)
	case uint64:
		return encodeInt(x, size)
	case float32:
		return encodeFloat(float64(x), size)
	case float64:
		return encodeFloat(x, size)
	case time.Time:
		if size == 8 {
			return encodeInt(uint64(x.UnixMilli()), size)
		}
		return encodeInt(uint64(x.Unix()), size)
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

// encodeInt writes the low size bytes of v big-endian.
func encodeInt(v uint64, size int) ([]byte, error) {
	if size < 1 || size > 8 {
		return nil, fmt.Errorf("integer length %d out of range", size)
	}
	out := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out, nil
}

func encodeFloat(v float64, size int) ([]byte, error) {
	switch size {
	case 4:
		return be.AppendUint32(nil, math.Float32bits(float32(v))), nil
	case 8:
		return be.AppendUint64(nil, math.Float64bits(v)), nil
	}
	return nil, fmt.Errorf("float length %d out of range", size)
}

// Templates in the shape PSKReporter uses: one receiver options record per
// message followed by sender data records.
var (
	ReceiverTemplate = Template{
		ID:         0x9992,
		ScopeCount: 1,
		Fields: []FieldSpec{
			ReceiverCallsign.Variable(),
			ReceiverLocator.Variable(),
			DecoderSoftware.Variable(),
		},
	}
	SenderTemplate = Template{
		ID: 0x9993,
		Fields: []FieldSpec{
			SenderCallsign.Variable(),
			Frequency.Fixed(5),
			SNR.Fixed(1),
			IMD.Fixed(1),
			Mode.Variable(),
			InformationSource.Fixed(1),
			SenderLocator.Variable(),
			FlowStartSeconds.Fixed(4),
		},
	}
	// SenderTemplateNoSNR carries sender records whose SNR is unknown.
	SenderTemplateNoSNR = Template{
		ID: 0x9994,
		Fields: []FieldSpec{
			SenderCallsign.Variable(),
			Frequency.Fixed(5),
			Mode.Variable(),
			InformationSource.Fixed(1),
			SenderLocator.Variable(),
			FlowStartSeconds.Fixed(4),
		},
	}
)

// ReceptionMessage encodes receptions heard by one receiver. The receiver
// fields are taken from the first reception. Receptions without an SNR use
// a template that omits the field.
func ReceptionMessage(exportTime time.Time, sequence, domain uint32, receptions []model.Reception) ([]byte, error) {
	if len(receptions) == 0 {
		return nil, fmt.Errorf("ipfix: no receptions to encode")
	}
	rx := receptions[0]

	var withSNR, withoutSNR []Record
	for _, r := range receptions {
		rec := Record{
			SenderCallsign:    r.TxCallsign,
			Frequency:         r.Frequency,
			Mode:              r.Mode,
			InformationSource: uint8(1),
			SenderLocator:     r.TxLocator,
			FlowStartSeconds:  r.Timestamp,
		}
		if r.SNR == nil {
			withoutSNR = append(withoutSNR, rec)
			continue
		}
		rec[SNR] = *r.SNR
		withSNR = append(withSNR, rec)
	}

	m := NewMessage(exportTime, sequence, domain).AddOptionsTemplates(ReceiverTemplate)
	if len(withSNR) > 0 {
		m.AddTemplates(SenderTemplate)
	}
	if len(withoutSNR) > 0 {
		m.AddTemplates(SenderTemplateNoSNR)
	}
	m.AddRecords(ReceiverTemplate, Record{
		ReceiverCallsign: rx.RxCallsign,
		ReceiverLocator:  rx.RxLocator,
		DecoderSoftware:  rx.DecoderSoftware,
	})
	if len(withSNR) > 0 {
		m.AddRecords(SenderTemplate, withSNR...)
	}
	if len(withoutSNR) > 0 {
		m.AddRecords(SenderTemplateNoSNR, withoutSNR...)
	}
	return m.Bytes()
}
