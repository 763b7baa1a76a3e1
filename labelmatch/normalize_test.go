package labelmatch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		mode NormalizeMode
		want string
	}{
		{"Email*", ModeCatalog, "email"},
		{"  First   Name: ", ModeCatalog, "first name"},
		{"Full\tname\n", ModeCatalog, "full name"},
		{"E-MAIL ADDRESS", ModeCatalog, "e-mail address"},
		{"Phone (mobile)", ModeCatalog, "phone (mobile)"},
		{"Phone (mobile)", ModeDiscovered, "phone"},
		{"Please enter your best contact phone number*", ModeDiscovered, "best contact phone number"},
		{"What is the name of your school?", ModeDiscovered, "what is name school"},
		{"Enter the date", ModeCatalog, "enter the date"},
		{"Ｅｍａｉｌ", ModeCatalog, "email"},
		{"Name\x00\x07", ModeCatalog, "name"},
		{"(optional)", ModeDiscovered, ""},
		{"", ModeDiscovered, ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw, tt.mode))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	for _, raw := range []string{"Please enter your Email (work)*", "LinkedIn Profile URL:", "Why?"} {
		for _, mode := range []NormalizeMode{ModeCatalog, ModeDiscovered} {
			once := Normalize(raw, mode)
			assert.Equal(t, once, Normalize(once, mode), "%q", raw)
		}
	}
}

func TestIsStopWord(t *testing.T) {
	for _, w := range []string{"please", "enter", "your", "the", "a", "an", "of", "to", "for"} {
		assert.True(t, IsStopWord(w), w)
	}
	assert.False(t, IsStopWord("email"))
}

func TestIsBlacklisted(t *testing.T) {
	tests := map[string]bool{
		"i agree to terms":       true,
		"terms and conditions":   true,
		"privacy policy":         true,
		"captcha":                true,
		"submit application":     true,
		"search jobs":            true,
		"filter by location":     true,
		"job search":             false,
		"email":                  false,
		"do you agree to travel": false,
	}
	for label, want := range tests {
		assert.Equal(t, want, IsBlacklisted(label), label)
	}
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 1, WordCount(""))
	assert.Equal(t, 1, WordCount("   "))
	assert.Equal(t, 1, WordCount("Email"))
	assert.Equal(t, 3, WordCount(" a  b\tc "))
}

func TestSimilarity(t *testing.T) {
	a := []float32{3, 4}
	b := []float32{4, 3}
	assert.InDelta(t, 24.0, Dot(a, b), 1e-9)
	assert.InDelta(t, 0.96, Cosine(a, b), 1e-9)
	assert.Zero(t, Cosine(a, []float32{0, 0}))
	assert.Zero(t, Cosine(nil, b))

	L2Normalize(a)
	L2Normalize(b)
	assert.True(t, IsUnit(a, 1e-6))
	assert.InDelta(t, Cosine(a, b), Dot(a, b), 1e-6)

	zero := []float32{0, 0, 0}
	assert.Equal(t, []float32{0, 0, 0}, L2Normalize(zero))
	assert.False(t, IsUnit(zero, 1e-3))
}

func TestSelection(t *testing.T) {
	assert.True(t, SelectAll().IsAll())
	assert.Nil(t, SelectAll().Keys())
	assert.True(t, SelectNone().IsNone())
	assert.True(t, SelectKeys().IsNone())
	assert.True(t, SelectKeys("", "").IsNone())

	sel := SelectKeys("B", "A", "B", "")
	assert.False(t, sel.IsNone())
	assert.Equal(t, []string{"B", "A"}, sel.Keys())
}

func TestSelectionJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Selection
		out  string
	}{
		{`"all"`, SelectAll(), `"all"`},
		{`null`, SelectNone(), `null`},
		{`"none"`, SelectNone(), `null`},
		{`["EMAIL","PHONE_NUMBER"]`, SelectKeys("EMAIL", "PHONE_NUMBER"), `["EMAIL","PHONE_NUMBER"]`},
		{`[]`, SelectNone(), `null`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var sel Selection
			require.NoError(t, json.Unmarshal([]byte(tt.in), &sel))
			assert.Equal(t, tt.want.IsAll(), sel.IsAll())
			assert.Equal(t, tt.want.IsNone(), sel.IsNone())
			if !tt.want.IsNone() {
				assert.Equal(t, tt.want.Keys(), sel.Keys())
			}

			data, err := json.Marshal(sel)
			require.NoError(t, err)
			assert.JSONEq(t, tt.out, string(data))
		})
	}
}
