package download

import (
	"path"
	"regexp"
	"strings"

	"github.com/kennygrant/sanitize"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

const (
	maxNameLength    = 120
	defaultExtension = ".jpg"
)

// Namer derives local file names for one domain's images.
type Namer struct {
	replace     *regexp.Regexp
	replacement string
	cut         *regexp.Regexp
	fromTitle   bool
}

// NewNamer compiles the filename rules of cfg. Invalid patterns are reported
// and their tier is disabled.
func NewNamer(cfg crawler.DomainConfig) (Namer, []error) {
	var (
		n    = Namer{fromTitle: cfg.DownloadFilenameFromTitle}
		errs []error
	)
	if rr := cfg.DownloadFilenameRegexReplace; rr != nil && rr.Pattern != "" {
		re, err := regexp.Compile(rr.Pattern)
		if err != nil {
			errs = append(errs, err)
		} else {
			n.replace = re
			n.replacement = rr.Replacement
		}
	}
	if cfg.DownloadFilenameRegexCut != "" {
		re, err := regexp.Compile(cfg.DownloadFilenameRegexCut)
		if err != nil {
			errs = append(errs, err)
		} else {
			n.cut = re
		}
	}
	return n, errs
}

// Name returns the sanitized file name for item, or "" when none can be built.
func (n Namer) Name(item crawler.Item) string {
	base := crawler.Basename(item.ImageURL)
	ext := strings.ToLower(path.Ext(base))
	stem := strings.TrimSuffix(base, path.Ext(base))
	if ext == "" || len(ext) > 5 {
		ext = defaultExtension
	}

	name := cleanName(n.stem(stem, item.ProductTitle))
	if name == "" {
		name = cleanName(stem)
	}
	if name == "" {
		return ""
	}
	return name + ext
}

func (n Namer) stem(stem, title string) string {
	if n.replace != nil && n.replace.MatchString(stem) {
		return n.replace.ReplaceAllString(stem, n.replacement)
	}
	if n.cut != nil {
		if loc := n.cut.FindStringIndex(stem); loc != nil && loc[0] > 0 {
			return stem[:loc[0]]
		}
	}
	if n.fromTitle && strings.TrimSpace(title) != "" {
		return title
	}
	return stem
}

func cleanName(s string) string {
	s = strings.ToLower(sanitize.BaseName(s))
	s = strings.Trim(s, "-")
	if len(s) > maxNameLength {
		s = strings.TrimRight(s[:maxNameLength], "-")
	}
	return s
}
