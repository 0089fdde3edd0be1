package pycsw

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// KeywordLimit is the number of tags written as service keywords.
const KeywordLimit = 20

// SetKeywords writes the most used CKAN tags to the identification_keywords
// of the pycsw config and saves the file. It returns the written value.
func (s *Syncer) SetKeywords(ctx context.Context, cfg *Config) (string, error) {
	counts, err := s.catalog.TagCounts(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch tag counts: %w", err)
	}

	type tag struct {
		name  string
		count int
	}
	seen := map[string]int{}
	var tags []tag
	for _, tc := range counts {
		if i, ok := seen[tc.Name]; ok {
			if tc.Count > tags[i].count {
				tags[i].count = tc.Count
			}
			continue
		}
		seen[tc.Name] = len(tags)
		tags = append(tags, tag{tc.Name, tc.Count})
	}

	sort.SliceStable(tags, func(i, j int) bool {
		if tags[i].count != tags[j].count {
			return tags[i].count > tags[j].count
		}
		return tags[i].name < tags[j].name
	})
	if len(tags) > KeywordLimit {
		tags = tags[:KeywordLimit]
	}

	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.name
	}
	keywords := strings.Join(names, ",")

	cfg.SetKeywords(keywords)
	if err := cfg.Save(); err != nil {
		return "", err
	}
	s.logger.Info("Set service keywords", "count", len(names), "config", cfg.Path)
	return keywords, nil
}
