package bloom

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter(t *testing.T) {
	f := New(1000, 0.001)

	assert.False(t, f.MayContain("req-1"))
	f.Add("req-1")
	assert.True(t, f.MayContain("req-1"))
	assert.False(t, f.MayContain("req-2"))
}

func TestFilterNoFalseNegativesUnderConcurrency(t *testing.T) {
	f := New(10000, 0.01)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				f.Add(fmt.Sprintf("w%d-%d", w, i))
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < 4; w++ {
		for i := 0; i < 500; i++ {
			assert.True(t, f.MayContain(fmt.Sprintf("w%d-%d", w, i)))
		}
	}
}

func TestFilterDefaults(t *testing.T) {
	f := New(0, 5)
	f.Add("x")
	assert.True(t, f.MayContain("x"))
}
