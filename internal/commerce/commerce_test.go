package commerce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductGID(t *testing.T) {
	assert.Equal(t, "gid://shopify/Product/42", ProductGID("42"))
	assert.Equal(t, "gid://shopify/Product/42", ProductGID("gid://shopify/Product/42"))
	assert.Equal(t, "42", ProductIDFromGID("gid://shopify/Product/42"))
	assert.Equal(t, "42", ProductIDFromGID("42"))
}

func TestTags(t *testing.T) {
	tags := []string{"summer", "Sale"}

	assert.True(t, HasTag(tags, "sale"))
	assert.Equal(t, []string{"summer", "Sale", CloneMarkerTag}, WithTag(tags, CloneMarkerTag))
	assert.Equal(t, tags, WithTag(tags, "SALE"))
	assert.Equal(t, []string{"summer"}, WithoutTag(tags, "sale"))
	assert.Equal(t, []string{"summer", "Sale"}, tags)
}

func TestVariantOptionValue(t *testing.T) {
	var v Variant
	v.SetOptionValue(0, "Red")
	v.SetOptionValue(2, "Cotton")
	v.SetOptionValue(5, "ignored")

	assert.Equal(t, "Red", v.OptionValue(0))
	assert.Equal(t, "", v.OptionValue(1))
	assert.Equal(t, "Cotton", v.OptionValue(2))
	assert.Equal(t, "", v.OptionValue(3))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" DeepSeek ")
	require.NoError(t, err)
	assert.Equal(t, MethodDeepSeek, m)

	_, err = ParseMethod("babelfish")
	assert.Error(t, err)
}

func TestErrors(t *testing.T) {
	se := &StatusError{Op: "create product", StatusCode: 429}
	assert.Equal(t, "create product: http 429", se.Error())
	assert.Equal(t, 429, se.HTTPStatus())

	ue := UserErrors{{Field: []string{"handle"}, Message: "has already been taken"}, {Message: "bad"}}
	assert.Equal(t, "user errors: handle: has already been taken; bad", ue.Error())
}
