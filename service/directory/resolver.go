package directory

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

var (
	accountIDPattern      = regexp.MustCompile(`\d+\.\d+\.\d+`)
	exactAccountIDPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	namedRecipientPattern = regexp.MustCompile(`(?i)\bto\s+([A-Za-z0-9'\-_.]+)(?:\s+in\s+([A-Za-z ]+))?`)
)

// IsAccountID reports whether s is exactly a shard.realm.num account identifier.
func IsAccountID(s string) bool {
	return exactAccountIDPattern.MatchString(s)
}

// FindAccountID returns the first account identifier literal in text.
func FindAccountID(text string) (string, bool) {
	id := accountIDPattern.FindString(text)
	return id, id != ""
}

// Resolution is the outcome of resolving the recipient in a chat message.
type Resolution struct {
	// Handle is the token that identified the recipient: the literal account
	// id or the lower-cased name.
	Handle string

	// AccountID is empty when the recipient could not be resolved.
	AccountID string

	// Location is the lower-cased "in LOCATION" phrase, or the directory's
	// location for the recipient when the text omits it.
	Location string

	// Literal is true when the text carried an account id directly.
	Literal bool
}

// Resolved reports whether an account was found.
func (r Resolution) Resolved() bool {
	return r.AccountID != ""
}

// Resolver finds the intended recipient of a chat message.
type Resolver struct {
	dir    Directory
	logger *slog.Logger
}

// NewResolver creates a resolver backed by dir.
func NewResolver(dir Directory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{dir: dir, logger: logger}
}

// Resolve looks for a literal account id first; a literal always wins over
// any name in the same text. Otherwise it extracts "to NAME [in LOCATION]"
// and consults the directory.
func (r *Resolver) Resolve(ctx context.Context, text string) Resolution {
	if id, ok := FindAccountID(text); ok {
		return Resolution{Handle: id, AccountID: id, Literal: true}
	}

	m := namedRecipientPattern.FindStringSubmatch(text)
	if m == nil {
		return Resolution{}
	}

	name := strings.TrimRight(strings.ToLower(m[1]), ".")
	res := Resolution{
		Handle:   name,
		Location: strings.ToLower(strings.TrimSpace(m[2])),
	}
	return r.Lookup(ctx, res)
}

// Lookup fills in AccountID (and Location if empty) for a named resolution.
// Directory errors leave the resolution unresolved.
func (r *Resolver) Lookup(ctx context.Context, res Resolution) Resolution {
	if res.Literal || res.Handle == "" {
		return res
	}
	res.Handle = strings.ToLower(res.Handle)

	entry, ok, err := r.dir.Lookup(ctx, res.Handle)
	if err != nil {
		r.logger.WarnContext(ctx, "recipient lookup failed", "name", res.Handle, "error", err)
		return res
	}
	if !ok {
		r.logger.DebugContext(ctx, "recipient not in directory", "name", res.Handle)
		return res
	}

	res.AccountID = entry.AccountID
	if res.Location == "" {
		res.Location = entry.Location
	}
	return res
}
