package main

import (
	"fmt"
	"strconv"
	"time"

	"citrine/internal/common"
	"citrine/internal/db"
	"golang.org/x/sync/errgroup"
)

const seedIndexKey = "__cli_seed_index__"

func loadSeedIndex(engine *db.DB) int {
	if val, err := engine.Get(db.ReadOptions{}, []byte(seedIndexKey)); err == nil {
		if idx, err := strconv.Atoi(string(val)); err == nil {
			fmt.Printf("resumed seed index from %d\n", idx)
			return idx
		}
	}
	return 0
}

var kvPairs = [][2]string{
	{"apple", "artichoke"},
	{"banana", "broccoli"},
	{"cherry", "cabbage"},
	{"durian", "daikon"},
	{"elderberry", "eggplant"},
	{"fig", "fennel"},
	{"grapefruit", "ginger"},
	{"honeydew", "horseradish"},
	{"imbe", "ivygourd"},
	{"jackfruit", "jicama"},
	{"kiwi", "kale"},
	{"lime", "leek"},
	{"mango", "mushroom"},
	{"nectarine", "nopale"},
	{"orange", "okra"},
	{"peach", "peas"},
	{"quince", "quinoa"},
	{"raspberry", "radish"},
	{"strawberry", "spinach"},
	{"tangerine", "tomato"},
	{"ugni", "ube"},
	{"voavanga", "vanilla"},
	{"watermelon", "watercress"},
	{"ximenia", "xanthan"},
	{"yuzu", "yam"},
	{"zarzamora", "zucchini"},
}

// runSeed bulk-loads rounds*26 sample entries using one goroutine per fruit,
// which also exercises the group commit path.
func runSeed(engine *db.DB, rounds int, seedIndex *int) {
	start := time.Now()
	startIndex := *seedIndex

	var g errgroup.Group
	for _, pair := range kvPairs {
		pair := pair
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				key := fmt.Sprintf("%s%d", pair[0], startIndex+i)
				value := fmt.Sprintf("%s%d", pair[1], startIndex+i)
				if err := engine.Put(db.WriteOptions{}, []byte(key), []byte(value)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Printf("seed error: %v\n", err)
		return
	}
	*seedIndex += rounds

	if err := engine.Put(db.WriteOptions{Sync: true}, []byte(seedIndexKey), []byte(fmt.Sprint(*seedIndex))); err != nil {
		fmt.Printf("warning: failed to persist seed index: %v\n", err)
	}

	count := rounds * len(kvPairs)
	avgPerEntry := time.Since(start) / time.Duration(count)
	common.LogDuration(start, "seeded %d entries (%d * %d, index %d-%d) - %v/entry",
		count, len(kvPairs), rounds, startIndex, *seedIndex-1, avgPerEntry)
	fmt.Printf("seeded %d entries\n", count)
}
