package turn

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator issues turn IDs scoped by session code. Each generator carries
// a random run token so IDs stay unique across restarts sharing one history.
type IDGenerator struct {
	run     string
	counter uint64
}

// NewIDGenerator creates a generator starting at 1 with a fresh run token.
func NewIDGenerator() *IDGenerator {
	run, _, _ := strings.Cut(uuid.NewString(), "-")
	return &IDGenerator{run: run}
}

// Next returns "<sessionCode>-<run>-turn-<n>", using "local" when no session code is set.
func (g *IDGenerator) Next(sessionCode string) string {
	if sessionCode == "" {
		sessionCode = "local"
	}
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-%s-turn-%d", sessionCode, g.run, n)
}
