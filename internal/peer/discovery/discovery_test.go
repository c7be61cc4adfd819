package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	prefix := ServicePrefix("hesper")
	require.Equal(t, "/services/hesper/", prefix)

	t.Run("正常记录", func(t *testing.T) {
		r, err := parseRecord(prefix+"A", prefix, []byte(`{"label":"A","addr":"127.0.0.1:9001","mark":49152}`))
		require.NoError(t, err)
		require.Equal(t, Record{Label: "A", Addr: "127.0.0.1:9001", Mark: 49152}, r)
	})

	t.Run("标签缺省取 key", func(t *testing.T) {
		r, err := parseRecord(prefix+"B", prefix, []byte(`{"addr":"h:1","mark":7}`))
		require.NoError(t, err)
		require.Equal(t, "B", r.Label)
	})

	t.Run("非法记录", func(t *testing.T) {
		for name, value := range map[string]string{
			"not json":       `nope`,
			"label mismatch": `{"label":"X","addr":"h:1"}`,
			"no addr":        `{"label":"C"}`,
		} {
			_, err := parseRecord(prefix+"C", prefix, []byte(value))
			require.ErrorIs(t, err, ErrInvalidRecord, name)
		}
	})
}

func TestRecordEncodeRoundTrip(t *testing.T) {
	prefix := ServicePrefix("svc")
	in := Record{Label: "hot-1", Addr: "10.0.0.1:9001", Mark: 0xFFFF}
	value, err := in.Encode()
	require.NoError(t, err)

	out, err := parseRecord(prefix+in.Label, prefix, []byte(value))
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = Record{Label: "a/b", Addr: "h:1"}.Encode()
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestParseRecords(t *testing.T) {
	names := map[string]int{"high": 0xC000, "low": 0x4000}

	recs, err := ParseRecords("A=127.0.0.1:9001@high, B=127.0.0.1:9002@0x4000 ,C=h:3@300", names)
	require.NoError(t, err)
	require.Equal(t, []Record{
		{Label: "A", Addr: "127.0.0.1:9001", Mark: 0xC000},
		{Label: "B", Addr: "127.0.0.1:9002", Mark: 0x4000},
		{Label: "C", Addr: "h:3", Mark: 300},
	}, recs)

	for _, bad := range []string{"A", "A=h:1", "A=h:1@warm", "=h:1@1", "A=@1"} {
		_, err := ParseRecords(bad, names)
		require.ErrorIs(t, err, ErrInvalidRecord, bad)
	}

	recs, err = ParseRecords("", names)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestStatic_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStatic(Record{Label: "A", Addr: "h:1"}, Record{Label: "B", Addr: "h:2", Mark: 5})

	ch, err := s.Watch(ctx)
	require.NoError(t, err)

	var got []Update
	for i := 0; i < 2; i++ {
		got = append(got, <-ch)
	}
	require.Equal(t, "A", got[0].Record.Label)
	require.Equal(t, Add, got[1].Op)

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Close())
}
