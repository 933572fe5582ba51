package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("rental-1")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, counter)
	assert.Equal(t, 0, km.Len(), "lock table should be empty once every holder released")
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	assert.Equal(t, 1, km.Len())

	unlockA()
	unlockA() // second call is a no-op
	assert.Equal(t, 0, km.Len())
}
