package lib

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testModel struct {
	id string
}

func (t *testModel) ID() string {
	return t.id
}

func TestCollection(t *testing.T) {
	collection := NewCollection[string, *testModel]()
	require.NotNil(t, collection)

	collection.Store(&testModel{id: "testid"})

	item, ok := collection.Load("testid")
	require.Equal(t, ok, true)
	require.NotNil(t, item)
	require.Equal(t, 1, collection.Len())

	collection.Delete("testid")

	item, ok = collection.Load("testid")
	require.Equal(t, ok, false)
	require.Nil(t, item)
}

func TestCollectionRange(t *testing.T) {
	collection := NewCollection[string, *testModel]()
	collection.Store(&testModel{id: "a"})
	collection.Store(&testModel{id: "b"})

	seen := map[string]bool{}
	collection.Range(func(item *testModel) bool {
		seen[item.ID()] = true
		return true
	})

	require.True(t, seen["a"])
	require.True(t, seen["b"])
}
