package vector

import (
	"container/list"
	"slices"
	"strconv"
	"strings"

	"github.com/nrcae/ai-s3-search/internal/models"
	"github.com/nrcae/ai-s3-search/pkg/utils"
)

// resultCache is a bounded LRU of search results. It has no lock of its own;
// the Store guards it with its state mutex.
type resultCache struct {
	capacity int
	items    map[string]*list.Element
	lru      *list.List
}

type resultEntry struct {
	key  string
	hits []models.Hit
}

func newResultCache(capacity int) *resultCache {
	return &resultCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func (c *resultCache) get(key string) ([]models.Hit, bool) {
	if c.capacity <= 0 {
		return nil, false
	}
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*resultEntry).hits, true
}

func (c *resultCache) put(key string, hits []models.Hit) {
	if c.capacity <= 0 {
		return
	}
	if elem, ok := c.items[key]; ok {
		elem.Value.(*resultEntry).hits = hits
		c.lru.MoveToFront(elem)
		return
	}
	c.items[key] = c.lru.PushFront(&resultEntry{key: key, hits: hits})
	for c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.items, oldest.Value.(*resultEntry).key)
	}
}

func (c *resultCache) purge() {
	clear(c.items)
	c.lru.Init()
}

func (c *resultCache) len() int {
	return c.lru.Len()
}

// resultKey builds the cache key from the exact query bytes, top_k, and the extra
// parameters in sorted order.
func resultKey(query []float32, topK int, params map[string]string) string {
	var b strings.Builder
	b.Write(utils.Float32sToBytes(query))
	b.WriteString("|k=")
	b.WriteString(strconv.Itoa(topK))
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(params[k])
	}
	return b.String()
}
