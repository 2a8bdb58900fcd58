package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuffix(t *testing.T) {
	assert.Equal(t, "ES", Suffix("store_es"))
	assert.Equal(t, "NL", Suffix("shop_main_nl"))
	assert.Equal(t, "DE", Suffix("de"))
}

func TestSchema_Header(t *testing.T) {
	s := MustSchema("store_es", "store_de")

	assert.Equal(t, []string{
		"Product ID", "Product Title", "Sales Count",
		"Status DE", "Cloned GID DE", "Cloned Title DE",
		"Status ES", "Cloned GID ES", "Cloned Title ES",
	}, s.Header())
	assert.Equal(t, 9, s.Width())
	assert.Equal(t, []string{"store_de", "store_es"}, s.Stores())
}

func TestSchema_Columns(t *testing.T) {
	s := MustSchema("store_es", "store_de")

	de, ok := s.Columns("store_de")
	require.True(t, ok)
	assert.Equal(t, StoreColumns{Status: 3, GID: 4, Title: 5}, de)

	es, ok := s.Columns("store_es")
	require.True(t, ok)
	assert.Equal(t, StoreColumns{Status: 6, GID: 7, Title: 8}, es)

	_, ok = s.Columns("store_fr")
	assert.False(t, ok)
}

func TestNewSchema_Errors(t *testing.T) {
	_, err := NewSchema(nil)
	assert.Error(t, err)

	_, err = NewSchema([]string{"store_es", " "})
	assert.Error(t, err)

	_, err = NewSchema([]string{"store_es", "shop_es"})
	assert.Error(t, err)
}

func TestNewSchema_Dedupes(t *testing.T) {
	s, err := NewSchema([]string{"store_es", "store_es"})
	require.NoError(t, err)
	assert.Equal(t, []string{"store_es"}, s.Stores())
}

func TestSchema_Matches(t *testing.T) {
	s := MustSchema("store_es")
	header := s.Header()

	assert.True(t, s.Matches(header))
	assert.True(t, s.Matches(append(append([]string{}, header...), "", " ")))
	assert.False(t, s.Matches(header[:4]))
	assert.False(t, s.Matches(append(append([]string{}, header...), "Notes")))

	renamed := append([]string{}, header...)
	renamed[3] = "Status"
	assert.False(t, s.Matches(renamed))
}
