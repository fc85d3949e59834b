package record

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSANReplay(t *testing.T) {
	sans, err := SAN([]string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5"})
	require.NoError(t, err)
	require.Equal(t, []string{"e4", "e5", "Nf3", "Nc6", "Bb5"}, sans)
}

func TestSANStopsAtRejectedMove(t *testing.T) {
	sans, err := SAN([]string{"e2e4", "e2e4"})
	require.Error(t, err)
	require.Equal(t, []string{"e4"}, sans)
}

func TestPGNHeadersAndMoves(t *testing.T) {
	pgn := PGN(Game{
		ID:        "g-1",
		Mode:      "blitz-3",
		WhiteName: `Al "The" Pawn`,
		BlackName: "Bea",
		MovesUCI:  []string{"f2f3", "e7e5", "g2g4", "d8h4"},
		Result:    "black",
		Reason:    "checkmate",
		StartedAt: time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC),
	})
	require.Contains(t, pgn, `[Date "2024.03.09"]`)
	require.Contains(t, pgn, `[White "Al 'The' Pawn"]`)
	require.Contains(t, pgn, `[Termination "checkmate"]`)
	require.Contains(t, pgn, `[Result "0-1"]`)
	require.Contains(t, pgn, "1. f3 e5 2. g4 Qh4")
	require.True(t, strings.HasSuffix(pgn, " 0-1"), pgn)
}

func TestResultToken(t *testing.T) {
	require.Equal(t, "1-0", ResultToken("white"))
	require.Equal(t, "1/2-1/2", ResultToken("DRAW"))
	require.Equal(t, "*", ResultToken(""))
}

func TestSANConcurrentReplays(t *testing.T) {
	games := [][]string{
		{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5"},
		{"f2f3", "e7e5", "g2g4", "d8h4"},
		{"d2d4", "d7d5", "c2c4", "e7e6", "b1c3", "g8f6"},
	}
	want := make([][]string, len(games))
	for i, g := range games {
		sans, err := SAN(g)
		require.NoError(t, err)
		want[i] = sans
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16*len(games))
	for w := 0; w < 16; w++ {
		for i, g := range games {
			wg.Add(1)
			go func(i int, g []string) {
				defer wg.Done()
				for n := 0; n < 50; n++ {
					sans, err := SAN(g)
					if err != nil {
						errs <- err
						return
					}
					if strings.Join(sans, " ") != strings.Join(want[i], " ") {
						errs <- fmt.Errorf("game %d replayed as %v", i, sans)
						return
					}
				}
			}(i, g)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
