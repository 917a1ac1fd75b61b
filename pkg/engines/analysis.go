package engines

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"

	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

var (
	strictPolicy = bluemonday.StrictPolicy()

	// Bare URLs in prose or markdown. Closing brackets end a URL so
	// "[title](https://x.io/a)" yields "https://x.io/a".
	urlPattern = regexp.MustCompile(`https?://[^\s<>"'()\[\]{}]+`)
)

// Analyze inspects an answer for the requested brand.
//
// The brand is present when its name or domain is mentioned in the answer
// text, or when a cited URL belongs to the brand's registrable domain.
// Position is the brand's rank among the brand and its competitors ordered
// by first mention. A brand that is only cited ranks after every competitor
// named in the text.
func Analyze(answer *Answer, req QueryRequest) models.Observation {
	if answer == nil {
		return models.Observation{}
	}

	plain := PlainText(answer.Text)
	lowerPlain := strings.ToLower(plain)

	candidates := make([]string, 0, len(answer.Citations))
	candidates = append(candidates, answer.Citations...)
	candidates = append(candidates, anchorHrefs(answer.Text)...)
	candidates = append(candidates, urlPattern.FindAllString(answer.Text, -1)...)
	observed := observedURLs(candidates)

	ownDomain := models.NormalizeDomain(req.Domain)
	ownIdx := firstMention(lowerPlain, req.Brand, ownDomain)

	cited := false
	if own := registrableDomain(ownDomain); own != "" {
		for _, u := range observed {
			if registrableDomain(u.Domain) == own {
				cited = true
				break
			}
		}
	}

	obs := models.Observation{
		Presence:      ownIdx >= 0 || cited,
		AnswerSnippet: truncateRunes(plain, models.MaxSnippetLength),
		ObservedURLs:  observed,
	}

	type mention struct {
		name string
		idx  int
	}
	var mentions []mention
	ahead := 0
	for _, c := range req.Competitors {
		idx := firstMention(lowerPlain, c.Name, models.NormalizeDomain(c.Domain))
		if idx < 0 {
			continue
		}
		mentions = append(mentions, mention{name: c.Name, idx: idx})
		if ownIdx < 0 || idx < ownIdx {
			ahead++
		}
	}
	sort.SliceStable(mentions, func(i, j int) bool { return mentions[i].idx < mentions[j].idx })
	for _, m := range mentions {
		obs.Metadata.CompetitorsMentioned = append(obs.Metadata.CompetitorsMentioned, m.name)
	}

	if obs.Presence {
		obs.Position = ahead + 1
	}

	obs.Normalize()
	return obs
}

// PlainText strips markup from an answer and decodes entities.
func PlainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// anchorHrefs returns absolute http(s) link targets from any HTML in s.
func anchorHrefs(s string) []string {
	if !strings.Contains(s, "<a") {
		return nil
	}

	var hrefs []string
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return hrefs
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "a" {
				continue
			}
			for _, attr := range tok.Attr {
				if attr.Key == "href" && strings.HasPrefix(strings.ToLower(attr.Val), "http") {
					hrefs = append(hrefs, attr.Val)
				}
			}
		}
	}
}

// observedURLs canonicalizes and deduplicates candidate URLs, keeping first
// occurrence order. Positions start at 1.
func observedURLs(candidates []string) []models.ObservedURL {
	seen := make(map[string]bool, len(candidates))
	var out []models.ObservedURL
	for _, raw := range candidates {
		canonical, domain, ok := canonicalURL(raw)
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, models.ObservedURL{
			URL:      canonical,
			Domain:   domain,
			Position: len(out) + 1,
		})
	}
	return out
}

func canonicalURL(raw string) (string, string, bool) {
	raw = strings.TrimRight(strings.TrimSpace(raw), ".,;:!?*_`")
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "", "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String(), models.NormalizeDomain(u.Hostname()), true
}

// registrableDomain returns the eTLD+1 of host, or host itself when it has
// no public suffix (e.g. "localhost").
func registrableDomain(host string) string {
	if host == "" {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// firstMention returns the earliest index in lowerText where any of terms
// appears as a whole word, or -1.
func firstMention(lowerText string, terms ...string) int {
	best := -1
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if idx := indexWord(lowerText, term); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	return best
}

// indexWord finds term in text where the neighbouring runes are not letters
// or digits, so "acme" does not match inside "acmecorp".
func indexWord(text, term string) int {
	offset := 0
	for {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return -1
		}
		start := offset + i
		end := start + len(term)

		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return start
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
