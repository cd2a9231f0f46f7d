package whitelist

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
	"github.com/mailsentry/mail-sentry/internal/utils"
)

// Matcher checks records against the trusted sender and domain whitelist.
// A matched record bypasses all downstream scoring.
type Matcher struct {
	senders map[string]struct{}
	domains map[string]struct{}
	logger  *zap.Logger
}

// NewMatcher creates a whitelist matcher from the snapshot entries. An
// entry's scope ("sender" or "domain") decides which set it joins; with no
// scope, entries containing "@" are exact sender addresses and anything
// else is a domain.
func NewMatcher(entries []core.WhitelistEntry, logger *zap.Logger) *Matcher {
	m := &Matcher{
		senders: make(map[string]struct{}),
		domains: make(map[string]struct{}),
		logger:  logger,
	}

	for _, e := range entries {
		value := strings.ToLower(strings.TrimSpace(e.Value))
		if value == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(e.Scope)) {
		case "sender":
			m.senders[value] = struct{}{}
		case "domain":
			m.domains[value] = struct{}{}
		default:
			if strings.Contains(value, "@") {
				m.senders[value] = struct{}{}
			} else {
				m.domains[value] = struct{}{}
			}
		}
	}

	if logger != nil && (len(m.senders) > 0 || len(m.domains) > 0) {
		logger.Info("Initialized whitelist matcher",
			zap.Int("senders", len(m.senders)),
			zap.Int("domains", len(m.domains)))
	}

	return m
}

// Match reports whether the record's sender is whitelisted, either by exact
// address or by domain. Domain matching is suffix-exact after the "@":
// entry "example.com" matches "user@example.com" and "user@mail.example.com"
// but never "user@evil-example.com".
func (m *Matcher) Match(record *core.EmailRecord) (string, bool) {
	sender := strings.ToLower(strings.TrimSpace(record.Sender))
	if sender == "" {
		return "", false
	}

	if _, ok := m.senders[sender]; ok {
		return fmt.Sprintf("sender %q is whitelisted", sender), true
	}

	domain := utils.DomainOf(sender)
	if domain == "" {
		return "", false
	}

	if _, ok := m.domains[domain]; ok {
		return fmt.Sprintf("domain %q is whitelisted", domain), true
	}
	for d := range m.domains {
		if strings.HasSuffix(domain, "."+d) {
			return fmt.Sprintf("domain %q is whitelisted via %q", domain, d), true
		}
	}

	return "", false
}
