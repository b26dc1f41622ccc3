package workflow

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func NewSessionID() string {
	return "ses-" + uuid.New().String()
}

func NewInstanceID() string {
	return "wfi-" + uuid.New().String()
}

func NewGateID() string {
	return "gat-" + uuid.New().String()
}

// NewEventID is time-prefixed so ids sort roughly by creation even across
// restarts; the entropy suffix disambiguates same-nanosecond appends.
func NewEventID() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("evt-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("evt-%d-%s", time.Now().UnixNano(), hex.EncodeToString(b[:]))
}
