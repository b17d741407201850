package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendabot/vendabot/internal/catalog"
)

func testProducts() []catalog.Product {
	return []catalog.Product{
		{ID: 1, Title: "Caneca Vermelha", PriceCents: 2500},
		{ID: 2, Title: "Caneca Azul", PriceCents: 2500},
		{ID: 3, Title: "Camiseta Preta Básica", PriceCents: 5990},
	}
}

func TestMatchExactSubstring(t *testing.T) {
	p, ok := catalog.Match(testProducts(), "quero comprar a caneca azul, por favor")
	require.True(t, ok)
	assert.Equal(t, int64(2), p.ID)
}

func TestMatchExactSubstringIsCaseInsensitive(t *testing.T) {
	p, ok := catalog.Match(testProducts(), "QUERO A CANECA VERMELHA")
	require.True(t, ok)
	assert.Equal(t, int64(1), p.ID)
}

func TestMatchRequiresFullTokenCoverage(t *testing.T) {
	// "camiseta preta" misses the significant token "básica", so it must
	// not resolve to the shirt.
	_, ok := catalog.Match(testProducts(), "quero a camiseta básica preta legal")
	require.True(t, ok, "all significant tokens present, any order")

	_, ok = catalog.Match(testProducts(), "quero a camiseta preta")
	assert.False(t, ok, "partial token coverage must not match")
}

func TestMatchNoCandidate(t *testing.T) {
	_, ok := catalog.Match(testProducts(), "remover caneca verde")
	assert.False(t, ok)
}

func TestMatchTieBreaksByCatalogOrder(t *testing.T) {
	products := []catalog.Product{
		{ID: 1, Title: "Kit Festa"},
		{ID: 2, Title: "Kit Festa"},
	}
	p, ok := catalog.Match(products, "quero o kit festa")
	require.True(t, ok)
	assert.Equal(t, int64(1), p.ID)
}

func TestMentions(t *testing.T) {
	products := testProducts()
	assert.True(t, catalog.Mentions(products, "me vê uma caneca aí"))
	assert.True(t, catalog.Mentions(products, "tem camiseta?"))
	assert.False(t, catalog.Mentions(products, "qual o horário da loja?"))
}
