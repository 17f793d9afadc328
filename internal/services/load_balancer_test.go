package services

import (
	"testing"
	"time"

	"sorabroker/internal/models"
)

func tokenFixture(id int64, useCount int, lastUsed time.Time) *models.Token {
	return &models.Token{
		ID:               id,
		IsActive:         true,
		ImageEnabled:     true,
		VideoEnabled:     true,
		ImageConcurrency: -1,
		VideoConcurrency: -1,
		UseCount:         useCount,
		LastUsedAt:       &lastUsed,
		Sora2Supported:   true,
		Sora2TotalCount:  10,
	}
}

func TestSelectImage_PrefersLeastUseCount(t *testing.T) {
	cm := NewConcurrencyManager()
	lb := NewLoadBalancer(cm, time.Minute)
	now := time.Now()

	lb.SetTokens([]*models.Token{
		tokenFixture(1, 5, now),
		tokenFixture(2, 2, now),
		tokenFixture(3, 9, now),
	})

	got := lb.SelectImage(now)
	if got == nil || got.ID != 2 {
		t.Fatalf("expected token 2 (least use count), got %+v", got)
	}
	lb.ReleaseImage(got.ID)
}

func TestSelectImage_TieBreaksByOldestLastUsedThenID(t *testing.T) {
	cm := NewConcurrencyManager()
	lb := NewLoadBalancer(cm, time.Minute)
	now := time.Now()

	lb.SetTokens([]*models.Token{
		tokenFixture(5, 1, now),
		tokenFixture(2, 1, now.Add(-time.Hour)),
		tokenFixture(3, 1, now.Add(-time.Hour)),
	})

	got := lb.SelectImage(now)
	if got == nil || got.ID != 2 {
		t.Fatalf("expected token 2 (oldest last_used_at, then lowest id), got %+v", got)
	}
}

func TestSelectImage_SkipsHeldLockAndFallsThrough(t *testing.T) {
	cm := NewConcurrencyManager()
	lb := NewLoadBalancer(cm, time.Minute)
	now := time.Now()

	lb.SetTokens([]*models.Token{
		tokenFixture(1, 1, now),
		tokenFixture(2, 2, now),
	})

	first := lb.SelectImage(now)
	if first == nil || first.ID != 1 {
		t.Fatalf("expected token 1 first, got %+v", first)
	}

	second := lb.SelectImage(now)
	if second == nil || second.ID != 2 {
		t.Fatalf("expected token 2 once token 1's lock is held, got %+v", second)
	}

	lb.ReleaseImage(1)
	lb.ReleaseImage(2)
}

func TestSelectImage_ExpiredLockIsConsideredFree(t *testing.T) {
	cm := NewConcurrencyManager()
	lb := NewLoadBalancer(cm, time.Millisecond)
	now := time.Now()

	lb.SetTokens([]*models.Token{tokenFixture(1, 1, now)})

	first := lb.SelectImage(now)
	if first == nil {
		t.Fatal("expected a token on first select")
	}

	later := now.Add(time.Second)
	second := lb.SelectImage(later)
	if second == nil || second.ID != 1 {
		t.Fatalf("expected the expired lock to be reusable, got %+v", second)
	}
}

func TestSelectVideo_RespectsSora2Eligibility(t *testing.T) {
	cm := NewConcurrencyManager()
	lb := NewLoadBalancer(cm, time.Minute)
	now := time.Now()

	noQuota := tokenFixture(1, 0, now)
	noQuota.Sora2TotalCount = 1
	noQuota.Sora2UsedCount = 1

	eligible := tokenFixture(2, 1, now)

	lb.SetTokens([]*models.Token{noQuota, eligible})

	got := lb.SelectVideo(now)
	if got == nil || got.ID != 2 {
		t.Fatalf("expected token 2 (only one with remaining sora2 quota), got %+v", got)
	}
}

func TestSelectImage_NoneWhenPoolEmpty(t *testing.T) {
	cm := NewConcurrencyManager()
	lb := NewLoadBalancer(cm, time.Minute)
	if got := lb.SelectImage(time.Now()); got != nil {
		t.Fatalf("expected nil from an empty pool, got %+v", got)
	}
}

func TestLoadBalancer_GetTokenCount(t *testing.T) {
	cm := NewConcurrencyManager()
	lb := NewLoadBalancer(cm, time.Minute)

	if lb.GetTokenCount() != 0 {
		t.Errorf("expected 0 tokens, got %d", lb.GetTokenCount())
	}

	lb.SetTokens([]*models.Token{
		tokenFixture(1, 0, time.Now()),
		tokenFixture(2, 0, time.Now()),
	})

	if lb.GetTokenCount() != 2 {
		t.Errorf("expected 2 tokens, got %d", lb.GetTokenCount())
	}
}

func TestLoadBalancer_GetTokenByID(t *testing.T) {
	cm := NewConcurrencyManager()
	lb := NewLoadBalancer(cm, time.Minute)
	lb.SetTokens([]*models.Token{tokenFixture(7, 0, time.Now())})

	if got := lb.GetTokenByID(7); got == nil {
		t.Fatal("expected to find token 7")
	}
	if got := lb.GetTokenByID(99); got != nil {
		t.Errorf("expected nil for unknown id, got %+v", got)
	}
}

func TestLoadBalancer_SetTokensPreservesHeldSlots(t *testing.T) {
	cm := NewConcurrencyManager()
	lb := NewLoadBalancer(cm, time.Minute)
	now := time.Now()

	tok := tokenFixture(1, 0, now)
	tok.ImageConcurrency = 1
	lb.SetTokens([]*models.Token{tok})

	got := lb.SelectImage(now)
	if got == nil {
		t.Fatal("expected to acquire the single image slot")
	}

	// Refreshing the pool with the same capacity must not reset the
	// semaphore's in-use count.
	lb.SetTokens([]*models.Token{tok})

	if second := lb.SelectImage(now); second != nil {
		t.Fatalf("expected the slot to still be held after a no-op refresh, got %+v", second)
	}

	lb.ReleaseImage(1)
}
