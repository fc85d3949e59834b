// Package record renders the archive text of a finished contest.
package record

import (
	"fmt"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
)

// Game is the input needed to write a PGN archive.
type Game struct {
	ID        string
	Mode      string
	WhiteName string
	BlackName string
	MovesUCI  []string
	Result    string // "white", "black", "draw" or empty while unfinished
	Reason    string
	StartedAt time.Time
}

// replayMu serialises board replays: the chess library's FEN encoder writes a
// package-level buffer, so concurrent games must not replay at the same time.
var replayMu sync.Mutex

// SAN replays UCI moves from the initial position and returns their SAN forms. Replay stops
// at the first move the reference board rejects; the returned error names it.
func SAN(moves []string) ([]string, error) {
	replayMu.Lock()
	defer replayMu.Unlock()

	game := nchess.NewGame()
	out := make([]string, 0, len(moves))
	notationUCI := nchess.UCINotation{}
	for i, uci := range moves {
		pos := game.Position()
		mv, err := notationUCI.Decode(pos, strings.ToLower(strings.TrimSpace(uci)))
		if err != nil {
			return out, fmt.Errorf("replay move %d (%s): %w", i+1, uci, err)
		}
		san := nchess.AlgebraicNotation{}.Encode(pos, mv)
		if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
			return out, fmt.Errorf("replay move %d (%s): %w", i+1, uci, err)
		}
		out = append(out, san)
	}
	return out, nil
}

// ResultToken maps a result to its PGN token.
func ResultToken(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

// PGN builds the archive text. Moves that cannot be converted to SAN are written as UCI.
func PGN(g Game) string {
	sans, err := SAN(g.MovesUCI)
	if err != nil {
		sans = append(sans, g.MovesUCI[len(sans):]...)
	}
	token := ResultToken(g.Result)

	date := g.StartedAt
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	b.WriteString("[Event \"Wager Arena\"]\n")
	b.WriteString("[Site \"cheese-arena\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	if g.ID != "" {
		fmt.Fprintf(&b, "[Round \"%s\"]\n", sanitize(g.ID))
	}
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitize(g.WhiteName))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitize(g.BlackName))
	if g.Mode != "" {
		fmt.Fprintf(&b, "[TimeControl \"%s\"]\n", sanitize(g.Mode))
	}
	if g.Reason != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitize(g.Reason))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", token)

	for i := 0; i < len(sans); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, sans[i])
		if i+1 < len(sans) {
			b.WriteString(" ")
			b.WriteString(sans[i+1])
		}
		b.WriteString(" ")
	}
	b.WriteString(token)
	return b.String()
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
