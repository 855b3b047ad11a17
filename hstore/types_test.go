package hstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoin(t *testing.T) {
	assert.Equal(t, "organizations/org1/invoices", Join("organizations", "org1", "invoices"))
	assert.Equal(t, "a/b", Join("/a/", "", "b/"))
	assert.Equal(t, "", Join("", "/"))
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Split("/a/b/c/"))
	assert.Nil(t, Split(""))
	assert.Nil(t, Split("/"))
}

func TestIsAffected(t *testing.T) {
	// A watch sees changes at, below, and above the watched path.
	assert.True(t, isAffected("invoices", "invoices"))
	assert.True(t, isAffected("invoices", "invoices/i1"))
	assert.True(t, isAffected("invoices/i1", "invoices"))

	// Sibling paths and shared string prefixes are unrelated.
	assert.False(t, isAffected("invoices", "clients/c1"))
	assert.False(t, isAffected("invoices", "invoices2/i1"))
}

func TestClone(t *testing.T) {
	original := Value{"a": 1}
	copied := Clone(original)
	copied["a"] = 2
	copied["b"] = 3

	assert.Equal(t, 1, original["a"])
	assert.NotContains(t, original, "b")
	assert.Nil(t, Clone(nil))
}
