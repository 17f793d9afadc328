package services

import (
	"sort"
	"sync"
	"time"

	"sorabroker/internal/models"
)

// LoadBalancer selects an eligible token for an image or video job and, on
// selection, holds the resources (per-token image lock, concurrency slot)
// the caller must release when the job finishes.
type LoadBalancer struct {
	tokens []*models.Token
	mu     sync.RWMutex

	concurrency  *ConcurrencyManager
	imageLockTTL time.Duration

	locksMu    sync.Mutex
	imageLocks map[int64]time.Time

	limitsMu sync.Mutex
	limits   map[int64][2]int // tokenID -> [imageConcurrency, videoConcurrency]
}

// NewLoadBalancer creates a load balancer backed by the given concurrency
// manager. imageLockTTL bounds how long a token's exclusive image lock can be
// held before it is considered free again, so a crash mid-generation cannot
// permanently strand a token.
func NewLoadBalancer(concurrency *ConcurrencyManager, imageLockTTL time.Duration) *LoadBalancer {
	return &LoadBalancer{
		tokens:       make([]*models.Token, 0),
		concurrency:  concurrency,
		imageLockTTL: imageLockTTL,
		imageLocks:   make(map[int64]time.Time),
		limits:       make(map[int64][2]int),
	}
}

// SetTokens replaces the pool's live token snapshot. Concurrency limits are
// only re-applied to tokens whose configured capacity actually changed, so a
// refresh never clobbers slots already held by an in-flight job.
func (lb *LoadBalancer) SetTokens(tokens []*models.Token) {
	lb.mu.Lock()
	lb.tokens = tokens
	lb.mu.Unlock()

	lb.limitsMu.Lock()
	defer lb.limitsMu.Unlock()
	for _, t := range tokens {
		prev, ok := lb.limits[t.ID]
		if !ok || prev[0] != t.ImageConcurrency {
			lb.concurrency.SetLimit(t.ID, true, t.ImageConcurrency)
		}
		if !ok || prev[1] != t.VideoConcurrency {
			lb.concurrency.SetLimit(t.ID, false, t.VideoConcurrency)
		}
		lb.limits[t.ID] = [2]int{t.ImageConcurrency, t.VideoConcurrency}
	}
}

// byPolicy orders candidates by the selection policy: least use_count,
// tie-break oldest last_used_at, final tie-break lowest id.
func byPolicy(tokens []*models.Token) {
	sort.Slice(tokens, func(i, j int) bool {
		a, b := tokens[i], tokens[j]
		if a.UseCount != b.UseCount {
			return a.UseCount < b.UseCount
		}
		at, bt := zeroIfNil(a.LastUsedAt), zeroIfNil(b.LastUsedAt)
		if !at.Equal(bt) {
			return at.Before(bt)
		}
		return a.ID < b.ID
	})
}

func zeroIfNil(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// SelectImage picks an eligible token, acquires its exclusive image lock and
// an image concurrency slot, and returns it. Returns nil if no eligible
// token has both available. Callers must call ReleaseImage(token.ID) on
// every exit path.
func (lb *LoadBalancer) SelectImage(now time.Time) *models.Token {
	candidates := lb.eligible(now, false)
	byPolicy(candidates)

	for _, t := range candidates {
		if !lb.tryAcquireImageLock(t.ID, now) {
			continue
		}
		if !lb.concurrency.TryAcquire(t.ID, true) {
			lb.releaseImageLock(t.ID)
			continue
		}
		return t
	}
	return nil
}

// ReleaseImage releases the image lock and concurrency slot held by a
// previous SelectImage call. Idempotent.
func (lb *LoadBalancer) ReleaseImage(tokenID int64) {
	lb.releaseImageLock(tokenID)
	lb.concurrency.Release(tokenID, true)
}

// SelectVideo picks an eligible token and acquires a video concurrency slot.
// Video jobs do not take the exclusive image lock. Callers must call
// ReleaseVideo(token.ID) on every exit path.
func (lb *LoadBalancer) SelectVideo(now time.Time) *models.Token {
	candidates := lb.eligible(now, true)
	byPolicy(candidates)

	for _, t := range candidates {
		if !lb.concurrency.TryAcquire(t.ID, false) {
			continue
		}
		return t
	}
	return nil
}

// ReleaseVideo releases the video concurrency slot held by a previous
// SelectVideo call. Idempotent.
func (lb *LoadBalancer) ReleaseVideo(tokenID int64) {
	lb.concurrency.Release(tokenID, false)
}

func (lb *LoadBalancer) eligible(now time.Time, forVideo bool) []*models.Token {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	candidates := make([]*models.Token, 0, len(lb.tokens))
	for _, t := range lb.tokens {
		if forVideo {
			if t.IsEligibleForVideo(now) {
				candidates = append(candidates, t)
			}
			continue
		}
		if t.IsEligibleForImage(now) {
			candidates = append(candidates, t)
		}
	}
	return candidates
}

func (lb *LoadBalancer) tryAcquireImageLock(tokenID int64, now time.Time) bool {
	lb.locksMu.Lock()
	defer lb.locksMu.Unlock()

	if expiry, held := lb.imageLocks[tokenID]; held && expiry.After(now) {
		return false
	}
	lb.imageLocks[tokenID] = now.Add(lb.imageLockTTL)
	return true
}

func (lb *LoadBalancer) releaseImageLock(tokenID int64) {
	lb.locksMu.Lock()
	defer lb.locksMu.Unlock()
	delete(lb.imageLocks, tokenID)
}

// GetTokenCount returns the number of tokens in the pool.
func (lb *LoadBalancer) GetTokenCount() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.tokens)
}

// GetTokenByID returns a token by its ID from the live pool snapshot.
func (lb *LoadBalancer) GetTokenByID(id int64) *models.Token {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	for _, t := range lb.tokens {
		if t.ID == id {
			return t
		}
	}
	return nil
}
