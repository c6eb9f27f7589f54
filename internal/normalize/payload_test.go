package normalize

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const envelope = `{
	"company": {"name": "Acme Plumbing", "website": " https://acme.com ", "categories": ["Plumbing"]},
	"analysis": {"isBusiness": true, "confidence": 0.92, "reasoning": "services page with pricing"},
	"contact": {"emails": ["info@acme.com", "  "], "phones": ["+1-555-0100"]}
}`

func assertAcme(t *testing.T, raw []byte, wantShape string) {
	t.Helper()
	rec, shapeName, err := Record(raw)
	require.NoError(t, err)
	assert.Equal(t, wantShape, shapeName)
	assert.Equal(t, "Acme Plumbing", rec.Company.Name)
	assert.Equal(t, "https://acme.com", rec.Company.Website, "website is trimmed")
	assert.True(t, rec.Analysis.BusinessConfirmed())
	assert.InDelta(t, 0.92, rec.Analysis.Confidence, 0.001)
	assert.Equal(t, []string{"info@acme.com"}, rec.Contact.Emails, "blank entries dropped")
}

func TestRecord_WrappedShape(t *testing.T) {
	assertAcme(t, []byte(`{"data": `+envelope+`}`), "wrapped")
}

func TestRecord_RootShape(t *testing.T) {
	assertAcme(t, []byte(envelope), "root")
}

func TestRecord_DoubleWrappedShape(t *testing.T) {
	assertAcme(t, []byte(`{"data": {"data": `+envelope+`}}`), "double_wrapped")
}

func TestRecord_LegacyFinalResultShape(t *testing.T) {
	assertAcme(t, []byte(`{"data": {"finalResult": `+envelope+`}}`), "legacy_final_result")
}

func TestRecord_OrderedDetection(t *testing.T) {
	// A payload matching both the wrapped and a deeper shape resolves to the
	// first match.
	raw := []byte(`{"data": {"company": {"name": "Outer"}, "contact": {}, "data": ` + envelope + `}}`)
	rec, shapeName, err := Record(raw)
	require.NoError(t, err)
	assert.Equal(t, "wrapped", shapeName)
	assert.Equal(t, "Outer", rec.Company.Name)
}

func TestRecord_UnrecognizedShape(t *testing.T) {
	for _, raw := range []string{
		`{"result": {"company": {}, "contact": {}}}`,
		`{"data": {"company": {}}}`,
		`{"company": {}}`,
		`[]`,
		`"just a string"`,
		``,
	} {
		_, _, err := Record([]byte(raw))
		require.Error(t, err, "payload %q", raw)
		assert.True(t, eris.Is(err, ErrUnrecognizedShape), "payload %q", raw)
	}
}

func TestRecord_TriStateUnknown(t *testing.T) {
	raw := []byte(`{"company": {"name": "X", "website": "x.com"}, "analysis": {"confidence": 0.5}, "contact": {}}`)
	rec, _, err := Record(raw)
	require.NoError(t, err)
	assert.Nil(t, rec.Analysis.IsBusiness)
	assert.False(t, rec.Analysis.BusinessConfirmed())
}

func TestRecord_DecodeErrorIsNotUnrecognized(t *testing.T) {
	raw := []byte(`{"company": {"name": 7}, "contact": {}}`)
	_, shapeName, err := Record(raw)
	require.Error(t, err)
	assert.Equal(t, "root", shapeName)
	assert.False(t, eris.Is(err, ErrUnrecognizedShape))
}
