package application

import (
	"testing"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCursorStoreAxesAreIndependent(t *testing.T) {
	store := NewCursorStore()

	_, ok := store.Get(testConv)
	assert.False(t, ok)

	store.Advance(testConv, "tok1")
	store.SetPagination(testConv, "page-1")
	store.Advance(testConv, "tok2")

	cursor, ok := store.Get(testConv)
	assert.True(t, ok)
	assert.Equal(t, domain.Cursor{DeltaToken: "tok2", PageToken: "page-1"}, cursor)
	assert.True(t, cursor.HistoryIncomplete())
	assert.False(t, cursor.Baseline())

	store.Drop(testConv)
	cursor, _ = store.Get(testConv)
	assert.True(t, cursor.Baseline())
}
