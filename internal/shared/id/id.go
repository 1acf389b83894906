// Package id provides centralized ID generation for the kernel.
//
// IDs are prefixed ULIDs: lexicographically sortable, so job and
// subscription listings come back in submission order for free, and the
// prefix makes logs readable (job_*, sub_*, con_*).
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// JobID identifies a submitted job.
type JobID string

// SubscriptionID identifies a bus subscription.
type SubscriptionID string

// ConnectionID identifies a stream-bridge connection.
type ConnectionID string

// AuditID identifies an audit-log entry.
type AuditID string

const (
	JobPrefix        = "job"
	SubPrefix        = "sub"
	ConnectionPrefix = "con"
	AuditPrefix      = "aud"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator with secure entropy.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source,
// useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewJobID generates a new job ID.
func NewJobID() JobID {
	return JobID(Default().GenerateWithPrefix(JobPrefix))
}

// NewSubscriptionID generates a new subscription ID.
func NewSubscriptionID() SubscriptionID {
	return SubscriptionID(Default().GenerateWithPrefix(SubPrefix))
}

// NewConnectionID generates a new connection ID.
func NewConnectionID() ConnectionID {
	return ConnectionID(Default().GenerateWithPrefix(ConnectionPrefix))
}

// NewAuditID generates a new audit-log entry ID.
func NewAuditID() AuditID {
	return AuditID(Default().GenerateWithPrefix(AuditPrefix))
}

func (id JobID) String() string          { return string(id) }
func (id SubscriptionID) String() string { return string(id) }
func (id ConnectionID) String() string   { return string(id) }
func (id AuditID) String() string        { return string(id) }

// IsValid checks if an ID string is a valid bare ULID.
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the embedded timestamp from a bare ULID string.
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
