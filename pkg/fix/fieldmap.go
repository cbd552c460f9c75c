package fix

import "time"

// FieldMap is an ordered collection of fields. Repeated tags are kept in
// arrival order so that parsed messages serialize back unchanged.
type FieldMap struct {
	fields []Field
}

// Set replaces the first field with the same tag, or appends.
func (m *FieldMap) Set(f Field) {
	for i := range m.fields {
		if m.fields[i].Tag == f.Tag {
			m.fields[i] = f
			return
		}
	}
	m.fields = append(m.fields, f)
}

// Add appends f even if the tag is already present.
func (m *FieldMap) Add(f Field) {
	m.fields = append(m.fields, f)
}

func (m *FieldMap) Get(tag Tag) (Field, bool) {
	for _, f := range m.fields {
		if f.Tag == tag {
			return f, true
		}
	}
	return Field{}, false
}

func (m *FieldMap) Has(tag Tag) bool {
	_, ok := m.Get(tag)
	return ok
}

func (m *FieldMap) Remove(tag Tag) {
	kept := m.fields[:0]
	for _, f := range m.fields {
		if f.Tag != tag {
			kept = append(kept, f)
		}
	}
	m.fields = kept
}

func (m *FieldMap) Len() int {
	return len(m.fields)
}

// Fields returns a copy of the fields in order.
func (m *FieldMap) Fields() []Field {
	out := make([]Field, len(m.fields))
	copy(out, m.fields)
	return out
}

func (m *FieldMap) Clear() {
	m.fields = nil
}

func (m *FieldMap) GetString(tag Tag) (string, error) {
	f, ok := m.Get(tag)
	if !ok {
		return "", FieldNotFound(tag)
	}
	return f.Value, nil
}

func (m *FieldMap) GetInt(tag Tag) (int, error) {
	f, ok := m.Get(tag)
	if !ok {
		return 0, FieldNotFound(tag)
	}
	return f.Int()
}

func (m *FieldMap) GetUint(tag Tag) (uint64, error) {
	f, ok := m.Get(tag)
	if !ok {
		return 0, FieldNotFound(tag)
	}
	return f.Uint()
}

func (m *FieldMap) GetBool(tag Tag) (bool, error) {
	f, ok := m.Get(tag)
	if !ok {
		return false, FieldNotFound(tag)
	}
	return f.Bool()
}

func (m *FieldMap) GetTime(tag Tag) (time.Time, error) {
	f, ok := m.Get(tag)
	if !ok {
		return time.Time{}, FieldNotFound(tag)
	}
	return f.Time()
}

func (m *FieldMap) SetString(tag Tag, value string) {
	m.Set(NewStringField(tag, value))
}

func (m *FieldMap) SetInt(tag Tag, value int) {
	m.Set(NewIntField(tag, value))
}

func (m *FieldMap) SetSeqNum(tag Tag, value uint64) {
	m.Set(NewSeqNumField(tag, value))
}

func (m *FieldMap) SetBool(tag Tag, value bool) {
	m.Set(NewBoolField(tag, value))
}

func (m *FieldMap) SetTime(tag Tag, value time.Time, precision TimestampPrecision) {
	m.Set(NewTimestampField(tag, value, precision))
}

// boolFlag reads a Y/N flag, treating absence or a bad value as false.
func (m *FieldMap) boolFlag(tag Tag) bool {
	v, err := m.GetBool(tag)
	return err == nil && v
}
