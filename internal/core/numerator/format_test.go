package numerator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileTemplate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"no number", "{prefix}{separator}"},
		{"two numbers", "{number}-{number}"},
		{"unknown placeholder", "{prefix}-{year}-{number}"},
		{"unterminated", "{prefix}-{number"},
		{"bad width", "{number:x}"},
		{"zero width", "{number:0}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileTemplate(tt.format)
			assert.Error(t, err)
		})
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		n    int64
		want string
	}{
		{"purchase default width", Record{Prefix: "P", Separator: "-", Format: FormatPadded4}, 4, "P-0004"},
		{"fiscal year sale", Record{Prefix: "2024-2025", Separator: "/", Format: FormatPadded2}, 8, "2024-2025/08"},
		{"literal text", Record{Prefix: "PO", Separator: "-", Format: "OPT/{prefix}{separator}{number:6}"}, 42, "OPT/PO-000042"},
		{"widens past width", Record{Prefix: "P", Separator: "-", Format: FormatPadded4}, 10000, "P-10000"},
		{"two-digit widens", Record{Prefix: "2024-2025", Separator: "/", Format: FormatPadded2}, 123, "2024-2025/123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(&tt.rec, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_BoundaryWidensAt9999(t *testing.T) {
	rec := &Record{Count: 9999, Prefix: "P", Separator: "-", Format: FormatPadded4}

	current, err := Render(rec, rec.Count)
	require.NoError(t, err)
	next, err := Render(rec, rec.Count+1)
	require.NoError(t, err)

	assert.Equal(t, "P-9999", current)
	assert.Equal(t, "P-10000", next)
}

func TestRenderParse_RoundTrip(t *testing.T) {
	records := []Record{
		{Prefix: "P", Separator: "-", Format: FormatPadded4},
		{Prefix: "2024-2025", Separator: "/", Format: FormatPadded2},
		{Prefix: "P1", Separator: "", Format: "{prefix}{number}"},
		{Prefix: "INV.", Separator: "*", Format: "{prefix}{separator}{number:5}-X"},
	}

	for _, rec := range records {
		for _, n := range []int64{0, 1, 7, 99, 9999, 10000, 123456} {
			rendered, err := Render(&rec, n)
			require.NoError(t, err)

			parsed, err := Parse(&rec, rendered)
			require.NoError(t, err, "parse %q", rendered)
			assert.Equal(t, n, parsed)

			again, err := Render(&rec, parsed)
			require.NoError(t, err)
			assert.Equal(t, rendered, again)
		}
	}
}

func TestParse_UsesKnownTemplate(t *testing.T) {
	// Digits inside the literal prefix must not leak into the sequence value.
	rec := &Record{Prefix: "2024-2025", Separator: "/", Format: FormatPadded2}

	n, err := Parse(rec, "2024-2025/08")
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	_, err = Parse(rec, "2023-2024/15")
	assert.True(t, errors.Is(err, ErrUnparseableNumber))

	_, err = Parse(rec, "P-0003")
	assert.True(t, errors.Is(err, ErrUnparseableNumber))
}

func TestNewParser(t *testing.T) {
	rec := &Record{Prefix: "P", Separator: "-", Format: FormatPadded4}
	p, err := NewParser(rec)
	require.NoError(t, err)

	for _, s := range []string{"P-0001", " P-0042 ", "P-10000", "P-0007"} {
		want, wantErr := Parse(rec, s)
		got, err := p.Parse(s)
		require.NoError(t, wantErr)
		require.NoError(t, err)
		assert.Equal(t, want, got, s)
	}

	_, err = p.Parse("INV-0001")
	assert.ErrorIs(t, err, ErrUnparseableNumber)

	_, err = NewParser(&Record{Format: "{prefix}"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnparseableNumber)
}

func TestTemplate_Width(t *testing.T) {
	tpl, err := CompileTemplate(FormatPadded4)
	require.NoError(t, err)
	assert.Equal(t, DefaultPadWidth, tpl.Width())

	tpl, err = CompileTemplate(FormatPadded2)
	require.NoError(t, err)
	assert.Equal(t, 2, tpl.Width())
}
