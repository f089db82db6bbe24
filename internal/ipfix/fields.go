// Package ipfix decodes and encodes the IPFIX framing used by PSKReporter
// reception feeds: a message header followed by template sets that declare
// record layouts and data sets whose records follow those layouts.
package ipfix

import "fmt"

const (
	// Version is the only IPFIX version accepted.
	Version = 10

	// TemplateSetID and OptionsTemplateSetID identify template sets;
	// data sets use the template id (>= MinDataSetID) as their set id.
	TemplateSetID        = 2
	OptionsTemplateSetID = 3
	MinDataSetID         = 256

	// VariableLength marks a field whose length is carried in the record.
	VariableLength = 0xFFFF

	// PSKReporterPEN is the private enterprise number of PSKReporter.
	PSKReporterPEN = 30351
	// CoordinatePEN carries raw coordinate fields (IANA documentation PEN).
	CoordinatePEN = 32473

	headerLen    = 16
	setHeaderLen = 4
)

// FieldKey identifies an information element.
type FieldKey struct {
	Enterprise uint32
	ID         uint16
}

func (k FieldKey) String() string {
	if k.Enterprise == 0 {
		return fmt.Sprintf("%d", k.ID)
	}
	return fmt.Sprintf("%d.%d", k.Enterprise, k.ID)
}

// Fixed returns a spec for k with a fixed byte length.
func (k FieldKey) Fixed(length uint16) FieldSpec {
	return FieldSpec{Key: k, Length: length}
}

// Variable returns a variable-length spec for k.
func (k FieldKey) Variable() FieldSpec {
	return FieldSpec{Key: k, Length: VariableLength}
}

// FieldSpec is one (element, length) pair of a template.
type FieldSpec struct {
	Key    FieldKey
	Length uint16
}

// Information elements understood by the decoder.
var (
	SenderCallsign       = FieldKey{PSKReporterPEN, 1}
	ReceiverCallsign     = FieldKey{PSKReporterPEN, 2}
	SenderLocator        = FieldKey{PSKReporterPEN, 3}
	ReceiverLocator      = FieldKey{PSKReporterPEN, 4}
	Frequency            = FieldKey{PSKReporterPEN, 5}
	SNR                  = FieldKey{PSKReporterPEN, 6}
	IMD                  = FieldKey{PSKReporterPEN, 7}
	DecoderSoftware      = FieldKey{PSKReporterPEN, 8}
	AntennaInformation   = FieldKey{PSKReporterPEN, 9}
	Mode                 = FieldKey{PSKReporterPEN, 10}
	InformationSource    = FieldKey{PSKReporterPEN, 11}
	PersistentIdentifier = FieldKey{PSKReporterPEN, 12}
	RigInformation       = FieldKey{PSKReporterPEN, 13}

	FlowStartSeconds      = FieldKey{0, 150}
	FlowStartMilliseconds = FieldKey{0, 152}

	SenderLatitude    = FieldKey{CoordinatePEN, 1}
	SenderLongitude   = FieldKey{CoordinatePEN, 2}
	ReceiverLatitude  = FieldKey{CoordinatePEN, 3}
	ReceiverLongitude = FieldKey{CoordinatePEN, 4}
)

// known lists the elements retained while decoding; anything else is
// skipped using its declared length.
var known = map[FieldKey]bool{
	SenderCallsign:        true,
	ReceiverCallsign:      true,
	SenderLocator:         true,
	ReceiverLocator:       true,
	Frequency:             true,
	SNR:                   true,
	IMD:                   true,
	DecoderSoftware:       true,
	Mode:                  true,
	InformationSource:     true,
	FlowStartSeconds:      true,
	FlowStartMilliseconds: true,
	SenderLatitude:        true,
	SenderLongitude:       true,
	ReceiverLatitude:      true,
	ReceiverLongitude:     true,
}
