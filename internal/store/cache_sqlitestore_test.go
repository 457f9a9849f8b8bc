package store

import (
	"context"
	"database/sql"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type cacheSQLiteStoreSuite struct {
	cacheStore *CacheSQLiteStore
	db         *sql.DB
	suite.Suite
}

func TestCacheSQLiteStore(t *testing.T) {
	suite.Run(t, new(cacheSQLiteStoreSuite))
}

func (suite *cacheSQLiteStoreSuite) SetupSuite() {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	suite.db = db
	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		log.Fatal(err)
	}

	RunMigrations(db, "migrations")

	suite.cacheStore = NewCacheSQLiteStore(db, db)
}

func (suite *cacheSQLiteStoreSuite) TearDownSuite() {
	_ = suite.db.Close()
}

func (suite *cacheSQLiteStoreSuite) TestCacheSQLiteStore_RoundTrip() {
	suite.Run("success - restore after save returns exactly the saved payload", func() {
		// arrange
		key := "docker-build-linux-aaaa1111"
		payload := []byte("layer blobs")

		// act
		err := suite.cacheStore.Save(context.Background(), key, "docker-build", payload)
		suite.NoError(err)
		entry, err := suite.cacheStore.Restore(context.Background(), key, nil)

		// assert
		suite.NoError(err)
		suite.NotNil(entry)
		suite.Equal(key, entry.CacheKey)
		suite.Equal(payload, entry.Payload)
	})
	suite.Run("success - re-save overwrites the entry for the key", func() {
		// arrange
		key := "docker-build-linux-bbbb2222"
		suite.NoError(suite.cacheStore.Save(context.Background(), key, "docker-build", []byte("old")))

		// act
		err := suite.cacheStore.Save(context.Background(), key, "docker-build", []byte("new"))
		entry, restoreErr := suite.cacheStore.Restore(context.Background(), key, nil)

		// assert
		suite.NoError(err)
		suite.NoError(restoreErr)
		suite.Equal([]byte("new"), entry.Payload)
	})
}

func (suite *cacheSQLiteStoreSuite) TestCacheSQLiteStore_RestoreFallback() {
	suite.Run("success - prefix fallback returns most recently written match", func() {
		// arrange
		older := "npm-linux-1111"
		newer := "npm-linux-2222"
		suite.NoError(suite.cacheStore.Save(context.Background(), older, "npm", []byte("older")))
		// created_on has second resolution; force distinct ordering
		_, err := suite.db.Exec(
			"update cache_entries set created_on = ? where cache_key = ?",
			time.Now().UTC().Add(-time.Hour).Format("2006-01-02 15:04:05"), older,
		)
		suite.NoError(err)
		suite.NoError(suite.cacheStore.Save(context.Background(), newer, "npm", []byte("newer")))

		// act
		entry, restoreErr := suite.cacheStore.Restore(
			context.Background(),
			"npm-linux-3333",
			[]string{"npm-linux-"},
		)

		// assert
		suite.NoError(restoreErr)
		suite.NotNil(entry)
		suite.Equal(newer, entry.CacheKey)
		suite.Equal([]byte("newer"), entry.Payload)
	})
	suite.Run("success - prefixes are tried in declared order", func() {
		// arrange
		suite.NoError(suite.cacheStore.Save(context.Background(), "pip-linux-9999", "pip", []byte("pip")))

		// act
		entry, err := suite.cacheStore.Restore(
			context.Background(),
			"gem-linux-0000",
			[]string{"gem-linux-", "pip-linux-"},
		)

		// assert
		suite.NoError(err)
		suite.NotNil(entry)
		suite.Equal("pip-linux-9999", entry.CacheKey)
	})
	suite.Run("success - full miss returns nil entry and nil error", func() {
		// act
		entry, err := suite.cacheStore.Restore(
			context.Background(),
			"go-build-linux-0000",
			[]string{"go-build-linux-"},
		)

		// assert
		suite.NoError(err)
		suite.Nil(entry)
	})
}

func (suite *cacheSQLiteStoreSuite) TestCacheSQLiteStore_Prune() {
	suite.Run("success - least recently used entries are dropped first", func() {
		// arrange
		db, err := sql.Open("sqlite", ":memory:")
		suite.NoError(err)
		defer db.Close()
		RunMigrations(db, "migrations")
		cs := NewCacheSQLiteStore(db, db)

		payload := make([]byte, 100)
		suite.NoError(cs.Save(context.Background(), "a-linux-1", "a", payload))
		suite.NoError(cs.Save(context.Background(), "b-linux-1", "b", payload))
		suite.NoError(cs.Save(context.Background(), "c-linux-1", "c", payload))
		_, err = db.Exec(
			"update cache_entries set last_used_on = ? where cache_key = ?",
			time.Now().UTC().Add(-2*time.Hour).Format("2006-01-02 15:04:05"), "b-linux-1",
		)
		suite.NoError(err)

		// act
		pruned, err := cs.Prune(context.Background(), 250)

		// assert
		suite.NoError(err)
		suite.Equal(int64(1), pruned)
		entry, err := cs.Restore(context.Background(), "b-linux-1", nil)
		suite.NoError(err)
		suite.Nil(entry)
	})
}
