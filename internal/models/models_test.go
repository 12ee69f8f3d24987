package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringSliceRoundTrip(t *testing.T) {
	slice := StringSlice{"a@x.com", "b@x.com"}

	value, err := slice.Value()
	require.NoError(t, err)

	var out StringSlice
	require.NoError(t, out.Scan(value))
	assert.Equal(t, slice, out)
}

func TestStringSliceEmpty(t *testing.T) {
	value, err := StringSlice{}.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", value)

	var out StringSlice
	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)

	require.NoError(t, out.Scan("[]"))
	assert.Empty(t, out)
}

func TestRestoreFolder(t *testing.T) {
	msg := &Message{Folder: FolderTrash, OriginalFolder: FolderSent}
	assert.Equal(t, FolderSent, msg.RestoreFolder())

	msg.OriginalFolder = ""
	assert.Equal(t, FolderInbox, msg.RestoreFolder())
}
