package library

import "time"

// Kind classifies a library item.
type Kind string

const (
	KindMovie   Kind = "movie"
	KindShow    Kind = "show"
	KindSeason  Kind = "season"
	KindEpisode Kind = "episode"
)

// Item is one node in the library tree. Movies and shows are top level;
// seasons hang off shows and episodes off seasons. Identity for top-level
// items is (kind, provider_id); seasons and episodes are identified by parent
// plus ordinal so renumbered provider data cannot split watch history.
type Item struct {
	ID           string
	Kind         Kind
	ProviderID   string
	Title        string
	Year         *int
	ParentID     string
	SeasonNum    *int
	EpisodeNum   *int
	Overview     string
	PosterPath   string
	Orphaned     bool
	OrphanCycles int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MediaFile is one video file observed on disk.
type MediaFile struct {
	Path        string
	Fingerprint string
	Size        int64
	ModifiedAt  time.Time
}

// FileLink binds an on-disk file to a library item. Multiple links may point
// at the same item; duplicates are tolerated, not deduplicated away.
// MissingCycles counts consecutive scans the path was absent: a link survives
// one absent scan before it drops, so a transient unmount does not force a
// provider re-match when the file returns.
type FileLink struct {
	MediaFile
	ItemID        string
	MissingCycles int
}

// UnresolvedReason explains why a file carries no item link.
type UnresolvedReason string

const (
	ReasonAmbiguous UnresolvedReason = "ambiguous"
	ReasonUnmatched UnresolvedReason = "unmatched"
)

// Guess is the filename-derived identity hint for an unresolved file.
type Guess struct {
	Kind    Kind
	Title   string
	Year    *int
	Season  *int
	Episode *int
}

// Candidate is one provider result surfaced for manual resolution.
type Candidate struct {
	ProviderID string  `json:"provider_id"`
	Kind       Kind    `json:"kind"`
	Title      string  `json:"title"`
	Year       *int    `json:"year,omitempty"`
	Score      float64 `json:"score"`
}

// UnresolvedFile is a scanned file awaiting a match decision. SkipMatch pins
// the file out of automatic matching until an operator clears it.
type UnresolvedFile struct {
	MediaFile
	Reason     UnresolvedReason
	Guess      Guess
	Candidates []Candidate
	SkipMatch  bool
	FirstSeen  time.Time
	LastSeen   time.Time
}

// Snapshot is the committed library state: the item tree, file links, and the
// unresolved backlog. A reconcile cycle replaces the whole snapshot at once.
type Snapshot struct {
	Items      []Item
	Links      []FileLink
	Unresolved []UnresolvedFile
}

// ChangeReport summarizes what one reconcile cycle changed.
type ChangeReport struct {
	Matched   int
	Ambiguous int
	Unmatched int
	Removed   int
	Orphaned  int
	Moved     int
	Warnings  []string
}

// Empty reports whether the cycle changed nothing.
func (r ChangeReport) Empty() bool {
	return r.Matched == 0 && r.Ambiguous == 0 && r.Unmatched == 0 &&
		r.Removed == 0 && r.Orphaned == 0 && r.Moved == 0 && len(r.Warnings) == 0
}

// Decision classifies a matcher outcome for one file.
type Decision string

const (
	DecisionMatched   Decision = "matched"
	DecisionAmbiguous Decision = "ambiguous"
	DecisionUnmatched Decision = "unmatched"
	// DecisionDeferred means no provider answer was available this cycle;
	// the file's previous state is carried forward untouched.
	DecisionDeferred Decision = "deferred"
)

// Identity is a fully resolved provider identity for a matched file. For
// episodes ProviderID, Title, and Year describe the show; Season and Episode
// locate the file inside it.
type Identity struct {
	Kind         Kind
	ProviderID   string
	Title        string
	Year         *int
	Overview     string
	PosterPath   string
	Season       *int
	Episode      *int
	EpisodeTitle string
}

// MatchOutcome is the matcher's verdict for one scanned file.
type MatchOutcome struct {
	Decision   Decision
	Identity   *Identity
	Guess      Guess
	Candidates []Candidate
}

// Collection is a named, ordered set of top-level items.
type Collection struct {
	ID        string
	Name      string
	CreatedAt time.Time
	ItemIDs   []string
}

// IntPtr is a small helper for optional ordinals and years.
func IntPtr(v int) *int { return &v }
