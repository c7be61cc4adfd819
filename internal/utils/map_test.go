package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedSyncMap_LoadOrCreate(t *testing.T) {
	var m TypedSyncMap[string, *int]
	_, ok := m.Load("a")
	assert.False(t, ok)

	created := 0
	first := m.LoadOrCreate("a", func() *int { created++; v := 1; return &v })
	second := m.LoadOrCreate("a", func() *int { created++; v := 2; return &v })
	assert.Same(t, first, second)
	assert.Equal(t, 1, created)

	got, ok := m.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 1, *got)
}

func TestCounters_Concurrent(t *testing.T) {
	var c Counters[string]
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Add("hits", 1)
			}
			c.Add("misses", 2)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5000), c.Get("hits"))
	assert.Equal(t, int64(0), c.Get("never"))
	assert.Equal(t, map[string]int64{"hits": 5000, "misses": 100}, c.Snapshot())
}

func TestCompleteAddress(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8001", CompleteAddress(":8001"))
	assert.Equal(t, "127.0.0.1:8001", CompleteAddress("8001"))
	assert.Equal(t, "10.0.0.2:8001", CompleteAddress("10.0.0.2:8001"))
	assert.Equal(t, "[::1]:8001", CompleteAddress("[::1]:8001"))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, SplitList(" a:1, ,b:2,"))
	assert.Nil(t, SplitList(""))
}
