package library

import (
	"fmt"
	"sort"
	"time"
)

// ReconcileInput carries everything one diff needs. Reconcile itself touches
// no storage and no clock; the orchestrator supplies both.
type ReconcileInput struct {
	Previous    Snapshot
	Scanned     []MediaFile
	Outcomes    map[string]MatchOutcome
	GraceCycles int
	Now         time.Time
	NewID       func() string
}

// Reconcile diffs the scanned filesystem truth against the previous snapshot
// and produces the next snapshot plus a change report. The function is pure:
// running it twice on the same input yields the same output, and a cycle over
// an unchanged tree yields an empty report.
func Reconcile(in ReconcileInput) (Snapshot, ChangeReport) {
	var report ChangeReport

	items := make(map[string]*Item, len(in.Previous.Items))
	for i := range in.Previous.Items {
		item := in.Previous.Items[i]
		items[item.ID] = &item
	}
	idx := buildIndex(items)

	prevLinkByPath := make(map[string]FileLink, len(in.Previous.Links))
	prevLinksByFP := make(map[string][]FileLink)
	for _, link := range in.Previous.Links {
		prevLinkByPath[link.Path] = link
		prevLinksByFP[link.Fingerprint] = append(prevLinksByFP[link.Fingerprint], link)
	}
	prevUnresolved := make(map[string]UnresolvedFile, len(in.Previous.Unresolved))
	for _, u := range in.Previous.Unresolved {
		prevUnresolved[u.Path] = u
	}

	scanned := append([]MediaFile(nil), in.Scanned...)
	sort.Slice(scanned, func(i, j int) bool { return scanned[i].Path < scanned[j].Path })

	present := make(map[string]struct{}, len(scanned))
	for _, f := range scanned {
		present[f.Path] = struct{}{}
	}

	var (
		links      []FileLink
		unresolved []UnresolvedFile
		claimed    = map[string]struct{}{}
	)

	for _, file := range scanned {
		if prev, ok := prevLinkByPath[file.Path]; ok && prev.Fingerprint == file.Fingerprint {
			links = append(links, FileLink{MediaFile: file, ItemID: prev.ItemID})
			continue
		}

		if moved, ok := findMove(prevLinksByFP[file.Fingerprint], present, claimed); ok {
			if _, exists := items[moved.ItemID]; exists {
				claimed[moved.Path] = struct{}{}
				links = append(links, FileLink{MediaFile: file, ItemID: moved.ItemID})
				report.Moved++
				continue
			}
		}

		if prev, ok := prevUnresolved[file.Path]; ok && prev.SkipMatch {
			unresolved = append(unresolved, carryUnresolved(prev, file, in.Now))
			continue
		}

		outcome, ok := in.Outcomes[file.Path]
		if !ok {
			outcome = MatchOutcome{Decision: DecisionDeferred}
		}

		switch outcome.Decision {
		case DecisionMatched:
			if outcome.Identity == nil {
				report.Warnings = append(report.Warnings, fmt.Sprintf("matched outcome without identity for %s", file.Path))
				unresolved = append(unresolved, newUnresolved(file, ReasonUnmatched, outcome, prevUnresolved, in.Now))
				report.Unmatched++
				continue
			}
			itemID := ensureIdentity(items, idx, *outcome.Identity, in.Now, in.NewID)
			links = append(links, FileLink{MediaFile: file, ItemID: itemID})
			report.Matched++
		case DecisionAmbiguous:
			unresolved = append(unresolved, newUnresolved(file, ReasonAmbiguous, outcome, prevUnresolved, in.Now))
			report.Ambiguous++
		case DecisionUnmatched:
			unresolved = append(unresolved, newUnresolved(file, ReasonUnmatched, outcome, prevUnresolved, in.Now))
			report.Unmatched++
		default:
			if prev, ok := prevUnresolved[file.Path]; ok {
				unresolved = append(unresolved, carryUnresolved(prev, file, in.Now))
			} else {
				u := newUnresolved(file, ReasonUnmatched, outcome, prevUnresolved, in.Now)
				unresolved = append(unresolved, u)
			}
		}
	}

	// A path absent for a single scan keeps its link one more cycle. When the
	// file returns it relinks by path and fingerprint without a provider
	// lookup; only a second consecutive absence drops the link and starts the
	// item's orphan clock.
	for _, link := range in.Previous.Links {
		if _, here := present[link.Path]; here {
			continue
		}
		if _, taken := claimed[link.Path]; taken {
			continue
		}
		if link.MissingCycles > 0 {
			continue
		}
		if _, exists := items[link.ItemID]; !exists {
			continue
		}
		link.MissingCycles = 1
		links = append(links, link)
	}

	applyOrphanPolicy(items, links, in.GraceCycles, in.Now, &report)
	pruneContainers(items, &report)

	next := Snapshot{
		Items:      flattenItems(items),
		Links:      links,
		Unresolved: unresolved,
	}
	return next, report
}

type itemIndex struct {
	topByProvider  map[string]string
	childByOrdinal map[string]string
}

func buildIndex(items map[string]*Item) *itemIndex {
	idx := &itemIndex{
		topByProvider:  map[string]string{},
		childByOrdinal: map[string]string{},
	}
	for id, item := range items {
		if item.ParentID == "" && item.ProviderID != "" {
			idx.topByProvider[providerKey(item.Kind, item.ProviderID)] = id
		}
		if item.ParentID != "" {
			idx.childByOrdinal[ordinalKey(item.ParentID, item.Kind, item.SeasonNum, item.EpisodeNum)] = id
		}
	}
	return idx
}

func providerKey(kind Kind, providerID string) string {
	return string(kind) + "\x00" + providerID
}

func ordinalKey(parentID string, kind Kind, season, episode *int) string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%s", parentID, kind, ordinal(season), ordinal(episode))
}

func ordinal(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func findMove(candidates []FileLink, present map[string]struct{}, claimed map[string]struct{}) (FileLink, bool) {
	for _, link := range candidates {
		if _, stillHere := present[link.Path]; stillHere {
			continue
		}
		if _, taken := claimed[link.Path]; taken {
			continue
		}
		return link, true
	}
	return FileLink{}, false
}

// ensureIdentity finds or creates the item (and, for episodes, the enclosing
// show and season) for a resolved identity, returning the linkable item ID.
func ensureIdentity(items map[string]*Item, idx *itemIndex, identity Identity, now time.Time, newID func() string) string {
	switch identity.Kind {
	case KindEpisode:
		showID := ensureTopLevel(items, idx, Item{
			Kind:       KindShow,
			ProviderID: identity.ProviderID,
			Title:      identity.Title,
			Year:       identity.Year,
			Overview:   identity.Overview,
			PosterPath: identity.PosterPath,
		}, now, newID)
		seasonID := ensureChild(items, idx, Item{
			Kind:      KindSeason,
			ParentID:  showID,
			SeasonNum: identity.Season,
			Title:     seasonTitle(identity.Season),
		}, now, newID)
		return ensureChild(items, idx, Item{
			Kind:       KindEpisode,
			ParentID:   seasonID,
			SeasonNum:  identity.Season,
			EpisodeNum: identity.Episode,
			Title:      identity.EpisodeTitle,
		}, now, newID)
	default:
		return ensureTopLevel(items, idx, Item{
			Kind:       KindMovie,
			ProviderID: identity.ProviderID,
			Title:      identity.Title,
			Year:       identity.Year,
			Overview:   identity.Overview,
			PosterPath: identity.PosterPath,
		}, now, newID)
	}
}

func ensureTopLevel(items map[string]*Item, idx *itemIndex, template Item, now time.Time, newID func() string) string {
	key := providerKey(template.Kind, template.ProviderID)
	if id, ok := idx.topByProvider[key]; ok {
		existing := items[id]
		refreshMetadata(existing, template, now)
		return id
	}
	template.ID = newID()
	template.CreatedAt = now
	template.UpdatedAt = now
	items[template.ID] = &template
	idx.topByProvider[key] = template.ID
	return template.ID
}

func ensureChild(items map[string]*Item, idx *itemIndex, template Item, now time.Time, newID func() string) string {
	key := ordinalKey(template.ParentID, template.Kind, template.SeasonNum, template.EpisodeNum)
	if id, ok := idx.childByOrdinal[key]; ok {
		existing := items[id]
		refreshMetadata(existing, template, now)
		return id
	}
	template.ID = newID()
	template.CreatedAt = now
	template.UpdatedAt = now
	items[template.ID] = &template
	idx.childByOrdinal[key] = template.ID
	return template.ID
}

func refreshMetadata(existing *Item, template Item, now time.Time) {
	changed := false
	if template.Title != "" && template.Title != existing.Title {
		existing.Title = template.Title
		changed = true
	}
	if template.Year != nil && (existing.Year == nil || *existing.Year != *template.Year) {
		existing.Year = template.Year
		changed = true
	}
	if template.Overview != "" && template.Overview != existing.Overview {
		existing.Overview = template.Overview
		changed = true
	}
	if template.PosterPath != "" && template.PosterPath != existing.PosterPath {
		existing.PosterPath = template.PosterPath
		changed = true
	}
	if changed {
		existing.UpdatedAt = now
	}
}

func seasonTitle(season *int) string {
	if season == nil {
		return "Specials"
	}
	if *season == 0 {
		return "Specials"
	}
	return fmt.Sprintf("Season %d", *season)
}

// applyOrphanPolicy marks linkless leaves as orphaned and removes those whose
// grace ran out. Items with links recover immediately.
func applyOrphanPolicy(items map[string]*Item, links []FileLink, grace int, now time.Time, report *ChangeReport) {
	linked := make(map[string]int, len(links))
	for _, link := range links {
		linked[link.ItemID]++
	}

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		item := items[id]
		if item.Kind != KindMovie && item.Kind != KindEpisode {
			continue
		}
		if linked[id] > 0 {
			if item.Orphaned || item.OrphanCycles != 0 {
				item.Orphaned = false
				item.OrphanCycles = 0
				item.UpdatedAt = now
			}
			continue
		}
		item.OrphanCycles++
		item.Orphaned = true
		item.UpdatedAt = now
		if item.OrphanCycles > grace {
			delete(items, id)
			report.Removed++
			continue
		}
		report.Orphaned++
	}
}

// pruneContainers drops seasons with no episodes and shows with no seasons.
// Containers carry no grace of their own; they follow their leaves.
func pruneContainers(items map[string]*Item, report *ChangeReport) {
	for _, kind := range []Kind{KindSeason, KindShow} {
		children := map[string]int{}
		for _, item := range items {
			if item.ParentID != "" {
				children[item.ParentID]++
			}
		}
		ids := make([]string, 0, len(items))
		for id := range items {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			item := items[id]
			if item.Kind != kind {
				continue
			}
			if children[id] == 0 {
				delete(items, id)
				report.Removed++
			}
		}
	}
}

func flattenItems(items map[string]*Item) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func newUnresolved(file MediaFile, reason UnresolvedReason, outcome MatchOutcome, prev map[string]UnresolvedFile, now time.Time) UnresolvedFile {
	firstSeen := now
	skip := false
	if old, ok := prev[file.Path]; ok {
		firstSeen = old.FirstSeen
		skip = old.SkipMatch
	}
	return UnresolvedFile{
		MediaFile:  file,
		Reason:     reason,
		Guess:      outcome.Guess,
		Candidates: outcome.Candidates,
		SkipMatch:  skip,
		FirstSeen:  firstSeen,
		LastSeen:   now,
	}
}

func carryUnresolved(prev UnresolvedFile, file MediaFile, now time.Time) UnresolvedFile {
	prev.MediaFile = file
	prev.LastSeen = now
	return prev
}
