package enhance

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"babygen/internal/domain"
)

const (
	defaultExpiration = 30 * time.Minute
	cleanupInterval   = 1 * time.Hour
)

// Cache memoizes enhancement sets by content fingerprint so unrelated
// re-renders never recompute them. Concurrent requests for the same
// fingerprint collapse into a single computation.
type Cache struct {
	filter *Filter
	sets   *gocache.Cache
	group  singleflight.Group
}

func NewCache(filter *Filter) *Cache {
	return &Cache{
		filter: filter,
		sets:   gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Enhance returns the cached set for the upload + parameters, computing
// it once on miss. Non-positive parameters take the filter defaults
// here so the cache key always matches the stored set's fingerprint.
func (c *Cache) Enhance(data []byte, contrast, brightness float64) (*domain.EnhancementSet, error) {
	if contrast <= 0 {
		contrast = c.filter.settings.Contrast
	}
	if brightness <= 0 {
		brightness = c.filter.settings.Brightness
	}
	fp := Fingerprint(data, contrast, brightness)
	if cached, ok := c.sets.Get(fp); ok {
		return cached.(*domain.EnhancementSet), nil
	}
	v, err, _ := c.group.Do(fp, func() (any, error) {
		set, err := c.filter.Enhance(data, contrast, brightness)
		if err != nil {
			return nil, err
		}
		c.sets.SetDefault(fp, set)
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.EnhancementSet), nil
}
