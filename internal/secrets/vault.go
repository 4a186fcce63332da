// Package secrets encrypts integration credentials at rest. Connection files
// carry sealed auth tokens; the vault opens them in-memory at load time.
package secrets

// Vault seals and opens credential strings. Sealed values are safe to commit
// to a connections file; opened values exist only in process memory.
type Vault interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}
