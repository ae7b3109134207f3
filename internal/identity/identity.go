package identity

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Identity is an email/password pair to be registered as an account.
// Values are immutable once created.
type Identity struct {
	Email    string
	Password string
}

// LoadEmails reads an email list file, one address per line. Blank lines
// are skipped.
func LoadEmails(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open email file: %w", err)
	}
	defer file.Close()

	var emails []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		emails = append(emails, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return emails, nil
}

// FilterUsed drops emails already bound to a stored account.
func FilterUsed(emails []string, used map[string]bool) []string {
	kept := make([]string, 0, len(emails))
	for _, e := range emails {
		if !used[e] {
			kept = append(kept, e)
		}
	}
	return kept
}

// Build pairs each email with the shared password, capped at limit.
// A non-positive limit means no cap.
func Build(emails []string, password string, limit int) []Identity {
	if limit > 0 && len(emails) > limit {
		emails = emails[:limit]
	}
	identities := make([]Identity, 0, len(emails))
	for _, e := range emails {
		identities = append(identities, Identity{Email: e, Password: password})
	}
	return identities
}
