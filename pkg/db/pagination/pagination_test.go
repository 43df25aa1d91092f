package pagination

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromQueryClampsLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, FromQuery(url.Values{}).Limit)
	require.Equal(t, MaxLimit, FromQuery(url.Values{"limit": {"1000"}}).Limit)
	require.Equal(t, 5, FromQuery(url.Values{"limit": {"5"}, "cursor": {"abc"}}).Limit)
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2025, 10, 19, 8, 0, 0, 0, time.UTC), ID: "42"}
	enc, err := EncodeCursor(in)
	require.NoError(t, err)

	out, err := DecodeCursor(enc)
	require.NoError(t, err)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, in.ID, out.ID)

	_, err = DecodeCursor("%%%")
	require.Error(t, err)
}

func TestTrim(t *testing.T) {
	type row struct{ id string }
	rows := []*row{{"3"}, {"2"}, {"1"}}

	page, info := Trim(rows, 2, func(r *row) Cursor { return Cursor{ID: r.id} })
	require.Len(t, page, 2)
	require.True(t, info.HasMore)

	c, err := DecodeCursor(info.NextCursor)
	require.NoError(t, err)
	require.Equal(t, "2", c.ID)

	page, info = Trim(rows, 5, func(r *row) Cursor { return Cursor{ID: r.id} })
	require.Len(t, page, 3)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextCursor)
}
