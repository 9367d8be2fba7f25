package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_FillsEmptyFields(t *testing.T) {
	t.Parallel()

	base := Attributes{Website: String("https://acme.example")}
	base.Merge(Attributes{
		Website:      String("https://other.example"),
		FoundingYear: String("1999"),
		MarketCap:    Float(12.5),
	})

	require.NotNil(t, base.Website)
	assert.Equal(t, "https://acme.example", *base.Website)
	require.NotNil(t, base.FoundingYear)
	assert.Equal(t, "1999", *base.FoundingYear)
	require.NotNil(t, base.MarketCap)
	assert.InDelta(t, 12.5, *base.MarketCap, 0.0001)
}

func TestMerge_FalsyValuesAreOverwritten(t *testing.T) {
	t.Parallel()

	base := Attributes{
		Headquarters:  String("x"),
		AnnualRevenue: Float(0),
		IsPublic:      Bool(false),
	}
	empty := ""
	base.Headquarters = &empty

	base.Merge(Attributes{
		Headquarters:  String("Springfield"),
		AnnualRevenue: Float(100),
		IsPublic:      Bool(true),
	})

	assert.Equal(t, "Springfield", *base.Headquarters)
	assert.InDelta(t, 100.0, *base.AnnualRevenue, 0.0001)
	assert.True(t, *base.IsPublic)
}

func TestMerge_NeverRegressesSetFields(t *testing.T) {
	t.Parallel()

	base := Attributes{
		CompanyType:  String("private"),
		Jurisdiction: String("gb"),
		MarketCap:    Float(5),
		IsPublic:     Bool(true),
	}
	snapshot := base.Fields()

	base.Merge(Attributes{
		CompanyType:  String("public"),
		Jurisdiction: String("us_de"),
		MarketCap:    Float(7),
		IsPublic:     Bool(false),
		Country:      String("UK"),
	})

	for _, f := range snapshot {
		if f.Value == nil {
			continue
		}
		assert.Equal(t, f.Value, base.Get(f.Key), "field %s regressed", f.Key)
	}
	assert.Equal(t, "UK", base.Get(FieldCountry))
}

func TestMerge_FirstProviderWins(t *testing.T) {
	t.Parallel()

	registry := Attributes{FoundingYear: String("1901")}
	knowledge := Attributes{FoundingYear: String("1902"), Website: String("kb")}
	infobox := Attributes{FoundingYear: String("1903"), Website: String("wiki"), Headquarters: String("hq")}

	var acc Attributes
	acc.Merge(registry).Merge(knowledge).Merge(infobox)

	assert.Equal(t, "1901", acc.Get(FieldFoundingYear))
	assert.Equal(t, "kb", acc.Get(FieldWebsite))
	assert.Equal(t, "hq", acc.Get(FieldHeadquarters))
}

func TestMerge_CopiesValues(t *testing.T) {
	t.Parallel()

	src := Attributes{Industry: String("Software")}
	var dst Attributes
	dst.Merge(src)

	*src.Industry = "Hardware"
	assert.Equal(t, "Software", *dst.Industry)
}

func TestFields_CanonicalOrder(t *testing.T) {
	t.Parallel()

	fields := Attributes{}.Fields()
	require.Len(t, fields, len(FieldKeys))
	for i, f := range fields {
		assert.Equal(t, FieldKeys[i], f.Key)
		assert.Nil(t, f.Value)
	}
}

func TestFilledAndIsEmpty(t *testing.T) {
	t.Parallel()

	var a Attributes
	assert.True(t, a.IsEmpty())
	assert.Equal(t, 0, a.Filled())

	a.IsPublic = Bool(false)
	a.Country = String("USA")
	assert.False(t, a.IsEmpty())
	assert.Equal(t, 2, a.Filled())
}

func TestGet_UnknownKey(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Attributes{Country: String("USA")}.Get("nope"))
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{float64(1500000000), "1500000000"},
		{2.5, "2.5"},
		{true, "true"},
		{42, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in))
	}
}

func TestString_EmptyIsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, String(""))
	require.NotNil(t, String("x"))
	assert.Equal(t, "x", *String("x"))
}
