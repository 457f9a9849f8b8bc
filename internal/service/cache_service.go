package service

import (
	"context"
	"fmt"
	"runtime"

	"github.com/haatos/securegate/internal/pipeline"
	"github.com/haatos/securegate/internal/store"
	"github.com/haatos/securegate/internal/util"
)

// CacheResult is the typed outcome of a cache restore. Steps branch on
// it directly: Hit gates rebuild steps, Exact gates the save.
type CacheResult struct {
	Hit   bool
	Exact bool
	Key   string
}

type CacheService struct {
	store store.CacheStore
}

func NewCacheService(cacheStore store.CacheStore) *CacheService {
	return &CacheService{store: cacheStore}
}

// Key builds `<namespace>-<OS>-<hash of declared input file set>`.
func (s *CacheService) Key(workdir string, spec *pipeline.CacheSpec) (string, error) {
	hash, err := util.HashFiles(workdir, spec.KeyFiles)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", spec.Namespace, runtime.GOOS, hash), nil
}

func (s *CacheService) restoreKeys(spec *pipeline.CacheSpec) []string {
	if len(spec.RestoreKeys) > 0 {
		return spec.RestoreKeys
	}
	return []string{fmt.Sprintf("%s-%s-", spec.Namespace, runtime.GOOS)}
}

// Restore looks up the entry and, on a hit, unpacks its payload into the
// job working directory. A full miss is not an error.
func (s *CacheService) Restore(
	ctx context.Context,
	workdir string,
	spec *pipeline.CacheSpec,
) (CacheResult, error) {
	key, err := s.Key(workdir, spec)
	if err != nil {
		return CacheResult{}, err
	}
	res := CacheResult{Key: key}

	entry, err := s.store.Restore(ctx, key, s.restoreKeys(spec))
	if err != nil {
		return res, err
	}
	if entry == nil {
		return res, nil
	}

	if err := util.ExtractArchive(workdir, entry.Payload); err != nil {
		return res, err
	}
	res.Hit = true
	res.Exact = entry.CacheKey == key
	return res, nil
}

// Save archives the declared paths and writes them under the exact key.
// Callers only save after an exact-key miss.
func (s *CacheService) Save(
	ctx context.Context,
	workdir string,
	spec *pipeline.CacheSpec,
	res CacheResult,
) error {
	payload, err := util.ArchivePaths(workdir, spec.Paths)
	if err != nil {
		return err
	}
	return s.store.Save(ctx, res.Key, spec.Namespace, payload)
}
