package mining

import (
	"math/rand/v2"
	"sync"
	"time"
)

var (
	Symbols = []string{"💎", "🔔", "❤️", "7️⃣", "🍋", "🍒"}
	Jackpot = [3]string{"🎉", "🎉", "🎉"}
)

// Schedule decides how long a run lasts and what the reels show on each tick.
type Schedule interface {
	Duration() time.Duration
	Reels() [3]string
}

type RandomSchedule struct {
	min, max time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSchedule draws durations uniformly from [min, max]. A zero seed
// picks a random one.
func NewRandomSchedule(min, max time.Duration, seed uint64) *RandomSchedule {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &RandomSchedule{
		min: min,
		max: max,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *RandomSchedule) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.max <= s.min {
		return s.min
	}
	return s.min + time.Duration(s.rng.Int64N(int64(s.max-s.min)+1))
}

func (s *RandomSchedule) Reels() [3]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reels [3]string
	for i := range reels {
		reels[i] = Symbols[s.rng.IntN(len(Symbols))]
	}
	return reels
}

type FixedSchedule struct {
	Total time.Duration
	Show  [3]string
}

func (s FixedSchedule) Duration() time.Duration { return s.Total }

func (s FixedSchedule) Reels() [3]string { return s.Show }
