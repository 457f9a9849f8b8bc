package service

import (
	"context"
	"log"

	"github.com/go-co-op/gocron/v2"
	"github.com/haatos/securegate/internal"
	"github.com/haatos/securegate/internal/store"
)

func NewCron() gocron.Scheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal(err)
	}
	return scheduler
}

// ScheduleCachePrune evicts least-recently-used cache entries nightly
// until total payload size fits the configured capacity.
func ScheduleCachePrune(s gocron.Scheduler, cacheStore store.CacheStore) {
	if _, err := s.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 0, 0))),
		gocron.NewTask(func() {
			capacity := internal.Config.CacheCapacityMB * 1024 * 1024
			pruned, err := cacheStore.Prune(context.Background(), capacity)
			if err != nil {
				log.Println("err pruning cache entries:", err)
				return
			}
			if pruned > 0 {
				log.Printf("pruned %d cache entries\n", pruned)
			}
		}),
	); err != nil {
		log.Fatal(err)
	}
}
