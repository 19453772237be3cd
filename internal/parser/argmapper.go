package parser

import "github.com/zulandar/switchboard/internal/command"

// DefaultRestField collects positional values beyond the named fields.
const DefaultRestField = "args"

// ArgMapper assigns positional values to named fields: one value per name
// in Fields, with any overflow collected under Rest.
type ArgMapper struct {
	Fields []string
	Rest   string
	Skip   int // leading values to discard
}

// Map converts an ordered value list into command data.
func (m ArgMapper) Map(values []string) command.Data {
	rest := m.Rest
	if rest == "" {
		rest = DefaultRestField
	}

	data := command.Data{}
	if m.Skip > 0 {
		if m.Skip >= len(values) {
			return data
		}
		values = values[m.Skip:]
	}

	for i, field := range m.Fields {
		if i >= len(values) {
			break
		}
		data[field] = []string{values[i]}
	}
	if len(values) > len(m.Fields) {
		data[rest] = append([]string(nil), values[len(m.Fields):]...)
	}
	return data
}
