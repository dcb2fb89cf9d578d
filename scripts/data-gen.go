/*
	Churn-heavy load generator: writes, overwrites and deletes a fixed
	key universe against a running server to grow log garbage for
	compaction testing.
*/

package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-faker/faker/v4"

	"kvstore/client"
)

const (
	concurrency = 6

	// Fixed universe
	totalKeys   = 100
	totalValues = 100

	// Per-cycle behavior
	keysPerCycleWrite  = 20
	keysPerCycleDelete = 10
	cyclesPerWorker    = 5000

	ttlEvery = 7 // every nth write carries a short TTL

	sleepBetweenCycles = 10 * time.Millisecond

	progressEvery = 500
)

func main() {
	start := time.Now()
	fmt.Println("Starting KVStore churn-heavy load generator")

	keys := makeKeys(totalKeys)
	values := makeValues(totalValues)

	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runWorker(id, keys, values)
		}(i)
	}

	wg.Wait()
	fmt.Printf("Load finished in %v\n", time.Since(start))
}

func runWorker(id int, keys []string, values []string) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))

	c, err := client.Connect()
	if err != nil {
		fmt.Printf("[worker %d] connect error: %v\n", id, err)
		return
	}
	defer c.Close()

	writes := 0

	for cycle := 1; cycle <= cyclesPerWorker; cycle++ {

		// ---- WRITE / OVERWRITE PHASE ----
		for i := 0; i < keysPerCycleWrite; i++ {
			key := keys[rng.Intn(len(keys))]
			val := values[rng.Intn(len(values))]
			writes++

			if writes%ttlEvery == 0 {
				if _, err := c.PutTTL(key, val, int64(1+rng.Intn(30))); err != nil {
					fmt.Printf("[worker %d] PUT TTL error: %v\n", id, err)
					return
				}
				continue
			}

			if _, err := c.Put(key, val); err != nil {
				fmt.Printf("[worker %d] PUT error: %v\n", id, err)
				return
			}
		}

		// ---- DELETE PHASE ----
		for i := 0; i < keysPerCycleDelete; i++ {
			key := keys[rng.Intn(len(keys))]

			if _, err := c.Delete(key); err != nil {
				fmt.Printf("[worker %d] DEL error: %v\n", id, err)
				return
			}
		}

		// ---- REWRITE PHASE (forces overwrite garbage) ----
		for i := 0; i < keysPerCycleWrite/2; i++ {
			key := keys[rng.Intn(len(keys))]
			val := values[rng.Intn(len(values))]

			if _, err := c.Put(key, val); err != nil {
				fmt.Printf("[worker %d] REWRITE error: %v\n", id, err)
				return
			}
		}

		if cycle%progressEvery == 0 {
			fmt.Printf("[worker %d] completed %d cycles\n", id, cycle)
		}

		if sleepBetweenCycles > 0 {
			time.Sleep(sleepBetweenCycles)
		}
	}
}

func makeKeys(n int) []string {
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("%s-%03d", faker.Word(), i)
	}
	return keys
}

func makeValues(n int) []string {
	values := make([]string, n)
	for i := 0; i < n; i++ {
		values[i] = fmt.Sprintf("%s-%03d", faker.Sentence(), i)
	}
	return values
}
