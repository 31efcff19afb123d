package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULID_RoundTrip(t *testing.T) {
	id := NewULID()
	assert.False(t, id.IsZero())

	parsed, err := ParseULID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseULID("not-a-ulid")
	assert.Error(t, err)
}

func TestULID_ValueScan(t *testing.T) {
	id := NewULID()

	v, err := id.Value()
	require.NoError(t, err)
	assert.Equal(t, id.String(), v)

	var scanned ULID
	require.NoError(t, scanned.Scan(id.String()))
	assert.Equal(t, id, scanned)

	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsZero())

	// Zero value stores NULL.
	v, err = ULID{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestULID_JSON(t *testing.T) {
	id := NewULID()
	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"`+id.String()+`"`, string(data))

	var back ULID
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, id, back)

	require.NoError(t, json.Unmarshal([]byte("null"), &back))
	assert.True(t, back.IsZero())
}

func TestDeterministicSegmentID(t *testing.T) {
	start := time.Date(2026, 8, 24, 13, 0, 0, 0, time.UTC)

	a := DeterministicSegmentID("kuwait1", start)
	b := DeterministicSegmentID("kuwait1", start)
	assert.Equal(t, a, b, "same channel and start must yield the same id")

	c := DeterministicSegmentID("kuwait2", start)
	assert.NotEqual(t, a, c, "different channel must yield a different id")

	d := DeterministicSegmentID("kuwait1", start.Add(time.Minute))
	assert.NotEqual(t, a, d, "different start must yield a different id")

	// Location changes must not change the id: the name is built from UTC.
	loc := time.FixedZone("AST", 3*3600)
	e := DeterministicSegmentID("kuwait1", start.In(loc))
	assert.Equal(t, a, e)
}

func TestJSONMap_ValueScan(t *testing.T) {
	m := JSONMap{"text": "عاجل", "lang": "ar"}

	v, err := m.Value()
	require.NoError(t, err)

	var back JSONMap
	require.NoError(t, back.Scan(v))
	assert.Equal(t, "عاجل", back["text"])
	assert.Equal(t, "ar", back["lang"])

	// nil map serializes as an empty object
	var empty JSONMap
	v, err = empty.Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)

	require.NoError(t, back.Scan(nil))
	assert.Nil(t, back)
}

func TestIntArray_ValueScan(t *testing.T) {
	bbox := IntArray{10, 20, 300, 40}

	v, err := bbox.Value()
	require.NoError(t, err)
	assert.Equal(t, "[10,20,300,40]", v)

	var back IntArray
	require.NoError(t, back.Scan(v))
	assert.Equal(t, bbox, back)
}

func TestWordList_ValueScan(t *testing.T) {
	words := WordList{
		{Word: "مرحبا", Start: 0.0, End: 0.6},
		{Word: "بكم", Start: 0.6, End: 1.1},
	}

	v, err := words.Value()
	require.NoError(t, err)

	var back WordList
	require.NoError(t, back.Scan(v))
	require.Len(t, back, 2)
	assert.Equal(t, "مرحبا", back[0].Word)
	assert.InDelta(t, 1.1, back[1].End, 0.0001)
}
