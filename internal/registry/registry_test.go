package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type nopSink struct{}

func (nopSink) Deliver([]byte) error { return nil }

func ids(conns []Connection) []string {
	return lo.Map(conns, func(c Connection, _ int) string { return c.ID })
}

func TestMembersExcludesSender(t *testing.T) {
	req := require.New(t)
	r := New()
	for _, id := range []string{"a", "b", "c"} {
		r.Register(id, nopSink{})
		req.NoError(r.RecordJoin(id, "conv:r1"))
	}
	r.Register("d", nopSink{})
	req.NoError(r.RecordJoin("d", "conv:r2"))

	req.ElementsMatch([]string{"b", "c"}, ids(r.Members("conv:r1", "a")))
	req.ElementsMatch([]string{"a", "b", "c"}, ids(r.Members("conv:r1", "")))
	req.Equal(3, r.Count("conv:r1"))
	req.Empty(r.Members("conv:missing", ""))
}

func TestRecordJoinUnknownConnection(t *testing.T) {
	r := New()
	require.ErrorIs(t, r.RecordJoin("ghost", "conv:r1"), ErrUnknownConnection)
	require.Zero(t, r.Count("conv:r1"))
}

func TestSetIdentityFirstWriteWins(t *testing.T) {
	req := require.New(t)
	r := New()
	r.Register("a", nopSink{})

	req.NoError(r.SetIdentity("a", "u1"))
	req.NoError(r.SetIdentity("a", "u2"))

	conn, ok := r.Lookup("a")
	req.True(ok)
	req.Equal("u1", conn.Identity)
	req.True(conn.Authenticated())
	req.ErrorIs(r.SetIdentity("ghost", "u1"), ErrUnknownConnection)
}

func TestRemoveConnectionPurgesAllRooms(t *testing.T) {
	req := require.New(t)
	r := New()
	r.Register("a", nopSink{})
	r.Register("b", nopSink{})
	for _, room := range []string{"conv:r1", "conv:r2", "conv:r3"} {
		req.NoError(r.RecordJoin("a", room))
	}
	req.NoError(r.RecordJoin("b", "conv:r1"))

	left := r.RemoveConnection("a")
	req.ElementsMatch([]string{"conv:r1", "conv:r2", "conv:r3"}, left)

	for _, room := range []string{"conv:r1", "conv:r2", "conv:r3"} {
		req.NotContains(ids(r.Members(room, "")), "a")
		req.False(r.Joined("a", room))
	}
	req.Equal(1, r.Count("conv:r1"))
	req.Zero(r.Count("conv:r2"))
	_, ok := r.Lookup("a")
	req.False(ok)
	req.Nil(r.RemoveConnection("a"))
	req.Nil(r.Rooms("a"))
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			r.Register(id, nopSink{})
			_ = r.SetIdentity(id, "u")
			_ = r.RecordJoin(id, "conv:shared")
			_ = r.Members("conv:shared", id)
			if i%2 == 0 {
				r.RemoveConnection(id)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 25, r.Count("conv:shared"))
	for _, c := range r.Members("conv:shared", "") {
		_, ok := r.Lookup(c.ID)
		require.True(t, ok)
	}
}
