package tracks

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(track string, frame int, x, y float64) Record {
	return Record{MovieID: "m1", TrackID: track, Frame: frame, X: x, Y: y, Intensity: 100}
}

func TestIngest_GroupsAndWindow(t *testing.T) {
	t.Parallel()

	records := []Record{
		rec("a", 2, 0, 0), rec("b", 3, 1, 1),
		rec("a", 3, 0, 1), rec("b", 4, 1, 2),
		rec("a", 4, 0, 2), rec("b", 9, 1, 3),
	}
	m := Ingest("m1", records, Options{})

	require.Len(t, m.Tracks, 2)
	assert.Empty(t, m.Rejected)
	assert.Equal(t, 2, m.FirstFrame)
	assert.Equal(t, 9, m.LastFrame)
	assert.Equal(t, 8, m.Length())

	a := m.Tracks["a"]
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, 2, a.FirstFrame())
	assert.Equal(t, 4, a.LastFrame())
	d, ok := a.At(3)
	require.True(t, ok)
	assert.Equal(t, 1.0, d.Y)
	_, ok = a.At(5)
	assert.False(t, ok)
}

func TestIngest_RejectionScopedToTrack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		bad     []Record
		reason  string
		atFrame int
	}{
		{
			name:    "out of order",
			bad:     []Record{rec("bad", 5, 0, 0), rec("bad", 4, 0, 0)},
			reason:  "frame order violation after frame 5",
			atFrame: 4,
		},
		{
			name:    "duplicate frame",
			bad:     []Record{rec("bad", 5, 0, 0), rec("bad", 5, 1, 0)},
			reason:  "duplicate frame",
			atFrame: 5,
		},
		{
			name:    "non-finite",
			bad:     []Record{rec("bad", 5, math.NaN(), 0), rec("bad", 6, 1, 0)},
			reason:  "non-finite position",
			atFrame: 5,
		},
		{
			name:    "negative frame",
			bad:     []Record{rec("bad", -1, 0, 0), rec("bad", 0, 1, 0)},
			reason:  "negative frame",
			atFrame: -1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			records := append([]Record{rec("good", 0, 0, 0), rec("good", 1, 0, 1)}, tt.bad...)
			m := Ingest("m1", records, Options{})

			require.Contains(t, m.Tracks, "good")
			assert.NotContains(t, m.Tracks, "bad")
			require.Contains(t, m.Rejected, "bad")
			assert.Equal(t, tt.reason, m.Rejected["bad"].Reason)
			assert.Equal(t, tt.atFrame, m.Rejected["bad"].Frame)
			assert.Equal(t, "m1", m.Rejected["bad"].MovieID)
		})
	}
}

func TestIngest_TooShort(t *testing.T) {
	t.Parallel()

	records := []Record{
		rec("short", 0, 0, 0),
		rec("long", 0, 0, 0), rec("long", 1, 0, 0), rec("long", 2, 0, 0),
	}

	m := Ingest("m1", records, Options{})
	assert.True(t, m.Tracks["short"].TooShort)
	assert.False(t, m.Tracks["long"].TooShort)
	assert.Equal(t, 1, m.TooShortCount())

	usable := m.Usable()
	require.Len(t, usable, 1)
	assert.Equal(t, "long", usable[0].ID)

	m = Ingest("m1", records, Options{MinTrackLength: 4})
	assert.Equal(t, 2, m.TooShortCount())
	assert.Empty(t, m.Usable())
}

func TestIngest_MovieLength(t *testing.T) {
	t.Parallel()

	records := []Record{
		rec("a", 3, 0, 0), rec("a", 4, 0, 0),
		rec("b", 8, 0, 0), rec("b", 10, 0, 0),
	}
	m := Ingest("m1", records, Options{MovieLength: 10})
	assert.Equal(t, 0, m.FirstFrame)
	assert.Equal(t, 9, m.LastFrame)
	assert.Equal(t, 10, m.Length())
	assert.Contains(t, m.Tracks, "a")
	require.Contains(t, m.Rejected, "b")
	assert.Equal(t, "frame beyond movie length", m.Rejected["b"].Reason)
}

func TestIngest_Empty(t *testing.T) {
	t.Parallel()

	m := Ingest("m1", nil, Options{})
	assert.Equal(t, 0, m.Length())
	assert.Empty(t, m.Usable())
}

func TestUsable_SortedByID(t *testing.T) {
	t.Parallel()

	var records []Record
	for _, id := range []string{"c", "a", "b"} {
		records = append(records, rec(id, 0, 0, 0), rec(id, 1, 0, 0))
	}
	m := Ingest("m1", records, Options{})
	var ids []string
	for _, tr := range m.Usable() {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestIngestAll_SplitsMoviesAndAppliesInvalid(t *testing.T) {
	t.Parallel()

	records := []Record{
		{MovieID: "m2", TrackID: "1", Frame: 0}, {MovieID: "m2", TrackID: "1", Frame: 1},
		{MovieID: "m1", TrackID: "1", Frame: 0}, {MovieID: "m1", TrackID: "1", Frame: 1},
		{MovieID: "m1", TrackID: "2", Frame: 0}, {MovieID: "m1", TrackID: "2", Frame: 1},
	}
	invalid := []*DataError{
		{MovieID: "m1", TrackID: "2", Frame: 2, Reason: "line 9: invalid x \"abc\""},
		{MovieID: "m3", TrackID: "7", Frame: 0, Reason: "line 12: invalid y \"\""},
	}

	movies := IngestAll(records, invalid, Options{})
	require.Len(t, movies, 3)
	assert.Equal(t, "m1", movies[0].ID)
	assert.Equal(t, "m2", movies[1].ID)
	assert.Equal(t, "m3", movies[2].ID)

	assert.Contains(t, movies[0].Tracks, "1")
	assert.NotContains(t, movies[0].Tracks, "2")
	assert.Contains(t, movies[0].Rejected, "2")
	assert.Contains(t, movies[2].Rejected, "7")
}

func TestAsDataError(t *testing.T) {
	t.Parallel()

	var err error = &DataError{TrackID: "x", Frame: 3, Reason: "duplicate frame"}
	de, ok := AsDataError(err)
	require.True(t, ok)
	assert.Equal(t, "x", de.TrackID)
	assert.Equal(t, "track x frame 3: duplicate frame", err.Error())

	_, ok = AsDataError(assert.AnError)
	assert.False(t, ok)
}
