// Package demo simulates song recognition so the daemon, the CLI and the
// console can be exercised end to end without audio hardware. Matches are
// drawn from the real catalog with plausible confidence values so the event
// stream looks realistic.
package demo

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/large-farva/earshot/internal/catalog"
	"github.com/large-farva/earshot/internal/telemetry"
)

// Songs is the part of the catalog the recognizer reads from.
type Songs interface {
	Random(ctx context.Context) (telemetry.Song, error)
}

// Recognizer picks a random catalog song and decides, with probability
// MatchRate, whether it was heard.
type Recognizer struct {
	Songs     Songs
	MatchRate float64

	rng *rand.Rand
}

// New creates a recognizer over songs.
func New(songs Songs, matchRate float64) *Recognizer {
	return &Recognizer{
		Songs:     songs,
		MatchRate: matchRate,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// NewSeeded is New with a deterministic random source.
func NewSeeded(songs Songs, matchRate float64, seed uint64) *Recognizer {
	r := New(songs, matchRate)
	r.rng = rand.New(rand.NewPCG(seed, seed))
	return r
}

// EarlyGuess returns the title of a random catalog song. An empty catalog
// yields "", which callers show as unknown.
func (r *Recognizer) EarlyGuess(ctx context.Context) (string, error) {
	song, err := r.Songs.Random(ctx)
	if errors.Is(err, catalog.ErrEmpty) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return song.Title, nil
}

// Identify returns a simulated result. Matches carry a confidence between
// 0.30 and 0.99; misses carry one below 0.40. An empty catalog never
// matches.
func (r *Recognizer) Identify(ctx context.Context) (telemetry.Result, error) {
	song, err := r.Songs.Random(ctx)
	if errors.Is(err, catalog.ErrEmpty) {
		return telemetry.Result{Confidence: r.between(0.05, 0.40)}, nil
	}
	if err != nil {
		return telemetry.Result{}, err
	}

	if r.rng.Float64() >= r.MatchRate {
		return telemetry.Result{Confidence: r.between(0.05, 0.40)}, nil
	}
	if song.Album == "" {
		song.Album = "Unknown Album"
	}
	return telemetry.Result{
		IsMatch:    true,
		Confidence: r.between(0.30, 0.99),
		Song:       &song,
	}, nil
}

// between returns a value in [lo, hi) rounded to two decimals.
func (r *Recognizer) between(lo, hi float64) float64 {
	v := lo + r.rng.Float64()*(hi-lo)
	v = float64(int(v*100)) / 100
	return v
}
