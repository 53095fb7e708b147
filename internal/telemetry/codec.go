package telemetry

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrFieldCountMismatch is matched by errors.Is for records that do not
	// carry exactly FieldCount values.
	ErrFieldCountMismatch = errors.New("field count mismatch")

	// ErrFieldParse is matched by errors.Is when a strict decoder meets a
	// value it cannot parse.
	ErrFieldParse = errors.New("field parse failure")
)

// FieldCountError reports a record rejected because of its field count.
type FieldCountError struct {
	Got  int
	Want int
}

func (e *FieldCountError) Error() string {
	return fmt.Sprintf("expected %d values, got %d", e.Want, e.Got)
}

func (e *FieldCountError) Is(target error) bool { return target == ErrFieldCountMismatch }

// FieldParseError lists the positions a strict decoder could not parse.
type FieldParseError struct {
	Indices []int
}

func (e *FieldParseError) Error() string {
	return fmt.Sprintf("failed to parse values at indices %v", e.Indices)
}

func (e *FieldParseError) Is(target error) bool { return target == ErrFieldParse }

// Decoded is the result of a decode, including the positions that fell back to
// zero under the lenient policy.
type Decoded struct {
	Reading   SensorReading
	Fallbacks []int
}

// numericPrefix is the longest leading decimal a lenient decoder accepts from
// a cleaned field, so "1.2.3" reads as 1.2 and "5-" as 5.
var numericPrefix = regexp.MustCompile(`^-?(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+)`)

// Decoder turns one wire record into a SensorReading.
//
// The record count rule is always strict: anything other than FieldCount
// values is rejected whole. Individual values are lenient by default: a value
// decodes to its numeric prefix, or to 0 when it has none. Strict requires
// every value to parse whole and rejects the record otherwise, so that a
// corrupted value is not mistaken for a genuine reading.
type Decoder struct {
	Strict bool
}

// Decode decodes packet with the default lenient decoder.
func Decode(packet string) (SensorReading, error) {
	d, err := Decoder{}.Decode(packet)
	return d.Reading, err
}

// Decode cleans packet of everything except digits, ',', '.' and '-', then
// parses the positional values.
func (d Decoder) Decode(packet string) (Decoded, error) {
	fields := strings.Split(clean(packet), ",")
	if len(fields) != FieldCount {
		return Decoded{}, &FieldCountError{Got: len(fields), Want: FieldCount}
	}

	var (
		values    [FieldCount]float64
		fallbacks []int
	)
	for i, f := range fields {
		v, ok := d.parseField(f)
		if !ok {
			fallbacks = append(fallbacks, i)
			continue
		}
		values[i] = v
	}

	if d.Strict && len(fallbacks) > 0 {
		return Decoded{}, &FieldParseError{Indices: fallbacks}
	}
	return Decoded{Reading: FromValues(values), Fallbacks: fallbacks}, nil
}

// parseField parses a whole cleaned field. A lenient decoder settles for the
// field's numeric prefix when the whole does not parse.
func (d Decoder) parseField(f string) (float64, bool) {
	if v, err := strconv.ParseFloat(f, 64); err == nil {
		return v, true
	}
	if d.Strict {
		return 0, false
	}
	prefix := numericPrefix.FindString(f)
	if prefix == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(prefix, 64)
	return v, err == nil
}

// Encode renders the reading's positional values as a wire record without a
// terminator. Values use the shortest representation that parses back to the
// same float64.
func Encode(r SensorReading) string {
	values := r.Values()
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	return b.String()
}

func clean(packet string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, packet)
}
