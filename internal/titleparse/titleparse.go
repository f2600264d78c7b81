package titleparse

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mediashelf/internal/library"
)

// minYear is the earliest release year treated as plausible. Anything older
// than the first films is assumed to be part of the title.
const minYear = 1880

var (
	noisePatterns = []string{
		`\b\d{3,4}[pi]\b`,
		`\b(4K|UHD|HD|SD)\b`,
		`\b(HDR10\+?|Dolby\s?Vision|DoVi|HDR|HLG|SDR)\b`,
		`\b(DTS-HD\s?MA|DTS-HD|DTS-X|DTS|TrueHD|Atmos|FLAC|PCM|Opus|MP3)\b`,
		`\b(DD\+?|DDP|E?AC3|AAC)\d\s\d\b`,
		`\b(DD\+?|DDP|E?AC3|AAC)\b`,
		`\b\d\.\d\b`,
		`\b(BluRay|Blu-ray|BDRip|BRRip|REMUX|WEB-DL|WEBDL|WEBRip|WEB)\b`,
		`\b(HDTV|PDTV|SDTV|DVDRip|DVDSCR|DVD)\b`,
		`\b(AMZN|NF|DSNP|HMAX|HULU|ATVP|PCOK|PMTP)\b`,
		`\b(x264|x265|HEVC|AVC|AV1|H\s?26[45]|XviD|DivX|VP9)\b`,
		`\b(PROPER|REPACK|iNTERNAL|INTERNAL|LiMiTED|LIMITED|UNRATED|EXTENDED|REMASTERED|Remastered)\b`,
		`\b(IMAX\s?Enhanced|IMAX|Directors\s?Cut|Theatrical|UNCUT|Criterion)\b`,
		`\b(MULTI|DUAL|DUBBED|SUBBED|MSubs|Subs|SUB)\b`,
		`\b(8bit|10bit|12bit)\b`,
		`\[.*?\]`,
		`-[A-Za-z0-9]+$`,
	}

	noiseRegexes   []*regexp.Regexp
	seasonEpisode  = regexp.MustCompile(`(?i)\bs(\d{1,2})[\s._-]?e(\d{1,3})\b`)
	crossNotation  = regexp.MustCompile(`\b(\d{1,2})x(\d{2,3})\b`)
	bareOrdinal    = regexp.MustCompile(`\b(\d{1,3})\b`)
	seasonDir      = regexp.MustCompile(`(?i)^(?:season[\s._-]*(\d{1,2})|s(\d{1,2}))\b`)
	yearCandidate  = regexp.MustCompile(`\b(\d{4})\b`)
	punctRegex     = regexp.MustCompile(`[._]+`)
	collapseSpaces = regexp.MustCompile(`\s+`)
	titleCaser     = cases.Title(language.English)
)

func init() {
	noiseRegexes = make([]*regexp.Regexp, 0, len(noisePatterns))
	for _, pattern := range noisePatterns {
		noiseRegexes = append(noiseRegexes, regexp.MustCompile(`(?i)`+pattern))
	}
}

// Parse derives an identity guess from a file path. Filenames are hints, not
// truth: the guess feeds provider search and is stored alongside unresolved
// files, never trusted as an identity on its own. When both a year and an
// episode marker are present the file is treated as an episode.
func Parse(path string, now time.Time) library.Guess {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parent := filepath.Base(filepath.Dir(path))
	grandparent := filepath.Base(filepath.Dir(filepath.Dir(path)))

	season, episode, marker := findEpisodeMarker(base, parent)
	if marker {
		guess := library.Guess{
			Kind:    library.KindEpisode,
			Season:  season,
			Episode: episode,
		}
		guess.Title, guess.Year = episodeShowTitle(base, parent, grandparent, now)
		return guess
	}
	if guess, ok := episodeFromDir(path, now); ok {
		return guess
	}

	title, year := cleanTitle(base, now)
	if title == "" {
		title, year = cleanTitle(parent, now)
	}
	return library.Guess{
		Kind:  library.KindMovie,
		Title: title,
		Year:  year,
	}
}

// markerIn finds the first SxxEyy or NxMM marker in text and reports where it
// starts and ends.
func markerIn(text string) (season, episode *int, loc []int) {
	for _, re := range []*regexp.Regexp{seasonEpisode, crossNotation} {
		if m := re.FindStringSubmatchIndex(text); m != nil {
			s, _ := strconv.Atoi(text[m[2]:m[3]])
			e, _ := strconv.Atoi(text[m[4]:m[5]])
			return library.IntPtr(s), library.IntPtr(e), m[:2]
		}
	}
	return nil, nil, nil
}

// findEpisodeMarker tries SxxEyy, then NxMM, then a bare number when the file
// sits under a season directory.
func findEpisodeMarker(base, parent string) (season, episode *int, ok bool) {
	if s, e, loc := markerIn(base); loc != nil {
		return s, e, true
	}

	dirSeason, inSeasonDir := seasonFromDir(parent)
	if !inSeasonDir {
		return nil, nil, false
	}
	if m := bareOrdinal.FindStringSubmatch(base); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch {
		case n >= 100:
			// Compact sSee form such as 205: season from the leading digit,
			// cross-checked against the directory.
			s, e := n/100, n%100
			if s == dirSeason {
				return library.IntPtr(s), library.IntPtr(e), true
			}
			return library.IntPtr(dirSeason), library.IntPtr(n%100), true
		case n > 0:
			return library.IntPtr(dirSeason), library.IntPtr(n), true
		}
	}
	return nil, nil, false
}

// episodeFromDir looks for an episode marker in the directory segments when
// the filename carries none. Innermost directories win; the text before the
// marker names the show, falling back to the segment above it.
func episodeFromDir(path string, now time.Time) (library.Guess, bool) {
	segments := strings.Split(filepath.ToSlash(filepath.Dir(path)), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		season, episode, loc := markerIn(segments[i])
		if loc == nil {
			continue
		}
		guess := library.Guess{
			Kind:    library.KindEpisode,
			Season:  season,
			Episode: episode,
		}
		guess.Title, guess.Year = cleanTitle(segments[i][:loc[0]], now)
		if guess.Title == "" && i > 0 && usableDirName(segments[i-1]) {
			guess.Title, guess.Year = cleanTitle(segments[i-1], now)
		}
		return guess, true
	}
	return library.Guess{}, false
}

func seasonFromDir(dir string) (int, bool) {
	m := seasonDir.FindStringSubmatch(strings.TrimSpace(dir))
	if m == nil {
		return 0, false
	}
	for _, group := range m[1:] {
		if group != "" {
			n, err := strconv.Atoi(group)
			return n, err == nil
		}
	}
	return 0, false
}

// episodeShowTitle prefers the directory structure: the dir above a season
// folder names the show. Flat layouts fall back to the text before the
// episode marker.
func episodeShowTitle(base, parent, grandparent string, now time.Time) (string, *int) {
	if _, ok := seasonFromDir(parent); ok {
		if usableDirName(grandparent) {
			return cleanTitle(grandparent, now)
		}
	}

	prefix := base
	if _, _, loc := markerIn(base); loc != nil {
		prefix = base[:loc[0]]
	}
	if title, year := cleanTitle(prefix, now); title != "" {
		return title, year
	}
	if usableDirName(parent) {
		return cleanTitle(parent, now)
	}
	return "", nil
}

func usableDirName(name string) bool {
	switch name {
	case "", ".", string(filepath.Separator):
		return false
	}
	return true
}

// cleanTitle strips release noise and extracts a plausible year. The last
// year-like token wins so "Blade Runner 2049 2017" keeps 2049 in the title.
func cleanTitle(raw string, now time.Time) (string, *int) {
	text := punctRegex.ReplaceAllString(raw, " ")
	for _, re := range noiseRegexes {
		text = re.ReplaceAllString(text, " ")
	}

	var year *int
	matches := yearCandidate.FindAllStringSubmatchIndex(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		start, end := matches[i][2], matches[i][3]
		n, err := strconv.Atoi(text[start:end])
		if err != nil || n < minYear || n > now.Year()+1 {
			continue
		}
		// A year at the very start of the name is part of the title
		// ("2001 A Space Odyssey") unless it is the only text.
		if strings.TrimSpace(text[:start]) == "" && strings.TrimSpace(text[end:]) != "" {
			continue
		}
		year = library.IntPtr(n)
		text = text[:start] + " " + text[end:]
		break
	}

	text = strings.Map(func(r rune) rune {
		switch r {
		case '(', ')', '[', ']', '{', '}':
			return ' '
		}
		return r
	}, text)
	text = collapseSpaces.ReplaceAllString(text, " ")
	text = strings.TrimSpace(strings.Trim(text, "-_ "))

	if text != "" && text == strings.ToLower(text) {
		text = titleCaser.String(text)
	}
	return text, year
}
