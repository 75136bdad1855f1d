package utils

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

func NewUUID() uuid.UUID {
	return uuid.New()
}

// RandomFloat возвращает равномерно распределённое значение из [min, max)
func RandomFloat(r *rand.Rand, min, max float64) float64 {
	v := min + r.Float64()*(max-min)
	if v >= max {
		// округление может дать ровно max
		return math.Nextafter(max, min)
	}
	return v
}

// RandomInt возвращает равномерно распределённое целое из [min, max]
func RandomInt(r *rand.Rand, min, max int) int {
	return min + r.Intn(max-min+1)
}

// Jitter сдвигает base на случайную долю spread в обе стороны, не опускаясь ниже нуля
func Jitter(r *rand.Rand, base, spread float64) float64 {
	v := base + (r.Float64()*2-1)*spread
	if v < 0 {
		return 0
	}
	return v
}

// NewRand создаёт генератор с заданным seed; seed 0 берёт текущее время
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
