package wire

import "fmt"

// ErrorFields is a structured ErrorResponse/NoticeResponse record. It
// generalizes the teacher's sendPGError (proxy/postgres.go), which only
// ever wrote the S/C/M fields, to the full tag table PostgreSQL defines.
type ErrorFields struct {
	Severity         string // S — required; ERROR, FATAL, or PANIC
	Code             string // C — required; SQLSTATE
	Message          string // M — required
	Detail           string // D
	Hint             string // H
	Position         string // P
	InternalPosition string // p
	InternalQuery    string // q
	Where            string // W
	Schema           string // s
	Table            string // t
	Column           string // c
	DataType         string // d
	Constraint       string // n
	File             string // F
	Line             string // L
	Routine          string // R
}

// Validate checks the required-field invariant from §4.3.
func (f ErrorFields) Validate() error {
	switch f.Severity {
	case "ERROR", "FATAL", "PANIC":
	default:
		return fmt.Errorf("wire: invalid severity %q", f.Severity)
	}
	if f.Code == "" {
		return fmt.Errorf("wire: error fields missing SQLSTATE code")
	}
	if f.Message == "" {
		return fmt.Errorf("wire: error fields missing message")
	}
	return nil
}

// EncodeError serializes f as an ErrorResponse ('E') message.
func EncodeError(f ErrorFields) ([]byte, error) {
	return encodeFields(ErrorResponse, f)
}

// EncodeNotice serializes f as a NoticeResponse ('N') message.
func EncodeNotice(f ErrorFields) ([]byte, error) {
	return encodeFields(NoticeResponse, f)
}

func encodeFields(code byte, f ErrorFields) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	w := NewBufferWriter()
	w.AddByte('S').AddCString(f.Severity)
	// V carries the same value as S for the machine-readable severity field.
	w.AddByte('V').AddCString(f.Severity)
	w.AddByte('C').AddCString(f.Code)
	w.AddByte('M').AddCString(f.Message)
	addOptional(w, 'D', f.Detail)
	addOptional(w, 'H', f.Hint)
	addOptional(w, 'P', f.Position)
	addOptional(w, 'p', f.InternalPosition)
	addOptional(w, 'q', f.InternalQuery)
	addOptional(w, 'W', f.Where)
	addOptional(w, 's', f.Schema)
	addOptional(w, 't', f.Table)
	addOptional(w, 'c', f.Column)
	addOptional(w, 'd', f.DataType)
	addOptional(w, 'n', f.Constraint)
	addOptional(w, 'F', f.File)
	addOptional(w, 'L', f.Line)
	addOptional(w, 'R', f.Routine)
	w.AddByte(0) // terminator tag
	return w.Flush(code), nil
}

func addOptional(w *BufferWriter, tag byte, value string) {
	if value == "" {
		return
	}
	w.AddByte(tag).AddCString(value)
}

// DecodeFields parses an ErrorResponse/NoticeResponse payload (the bytes
// after the message code and length) back into ErrorFields, used by tests
// asserting the encode/decode round-trip property from §8.
func DecodeFields(payload []byte) (ErrorFields, error) {
	r := NewBufferReader(payload)
	var f ErrorFields
	for {
		tag, err := r.Byte()
		if err != nil {
			return f, err
		}
		if tag == 0 {
			break
		}
		val, err := r.CString()
		if err != nil {
			return f, err
		}
		switch tag {
		case 'S':
			f.Severity = val
		case 'V':
			// machine-readable severity duplicates S; ignored on decode
		case 'C':
			f.Code = val
		case 'M':
			f.Message = val
		case 'D':
			f.Detail = val
		case 'H':
			f.Hint = val
		case 'P':
			f.Position = val
		case 'p':
			f.InternalPosition = val
		case 'q':
			f.InternalQuery = val
		case 'W':
			f.Where = val
		case 's':
			f.Schema = val
		case 't':
			f.Table = val
		case 'c':
			f.Column = val
		case 'd':
			f.DataType = val
		case 'n':
			f.Constraint = val
		case 'F':
			f.File = val
		case 'L':
			f.Line = val
		case 'R':
			f.Routine = val
		}
	}
	return f, nil
}
