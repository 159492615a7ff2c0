package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pricewatch/models"
)

type domainRegistry struct {
	Domains []models.DomainSetting `json:"domains" yaml:"domains"`
}

// LoadDomainSettings reads a YAML or JSON domain settings file. Both a top-level
// "domains" list and a bare list are accepted.
func LoadDomainSettings(path string) ([]models.DomainSetting, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("domains file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domains file: %w", err)
	}

	list, err := parseDomainSettings(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(list))
	out := make([]models.DomainSetting, 0, len(list))
	for i, s := range list {
		clean, err := SanitizeDomainSetting(s)
		if err != nil {
			return nil, fmt.Errorf("domain[%d]: %w", i, err)
		}
		if seen[clean.Domain] {
			return nil, fmt.Errorf("duplicate domain %q", clean.Domain)
		}
		seen[clean.Domain] = true
		out = append(out, clean)
	}
	return out, nil
}

type unmarshalFn func([]byte, any) error

func parseDomainSettings(data []byte, ext string) ([]models.DomainSetting, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		ext string
		fn  unmarshalFn
	}{
		{ext: ".yaml", fn: yaml.Unmarshal},
		{ext: ".yml", fn: yaml.Unmarshal},
		{ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var reg domainRegistry
		if err := d.fn(data, &reg); err == nil && len(reg.Domains) > 0 {
			return reg.Domains, nil
		}
		var list []models.DomainSetting
		if err := d.fn(data, &list); err == nil {
			return list, nil
		}
	}
	return nil, errors.New("domains file format not recognized (expected YAML or JSON)")
}

// NormalizeDomain lower-cases d and strips any scheme, path and leading "www.".
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return strings.TrimPrefix(d, "www.")
}

// SanitizeDomainSetting trims and validates one entry. An empty scraper means auto.
func SanitizeDomainSetting(s models.DomainSetting) (models.DomainSetting, error) {
	s.Domain = NormalizeDomain(s.Domain)
	if s.Domain == "" {
		return models.DomainSetting{}, errors.New("domain is required")
	}
	s.Selector = strings.TrimSpace(s.Selector)

	mode, err := models.ParseScraperMode(string(s.Scraper))
	if err != nil {
		return models.DomainSetting{}, fmt.Errorf("domain %q: %w", s.Domain, err)
	}
	s.Scraper = mode

	var sels []string
	for _, sel := range s.PriceSelectors {
		if sel = strings.TrimSpace(sel); sel != "" {
			sels = append(sels, sel)
		}
	}
	s.PriceSelectors = sels
	return s, nil
}

// ResolveDomain finds the setting for host: an exact match wins over a suffix match.
// Among suffix matches the longest domain wins.
func ResolveDomain(settings []models.DomainSetting, host string) (models.DomainSetting, bool) {
	host = NormalizeDomain(host)
	if host == "" {
		return models.DomainSetting{}, false
	}

	var (
		best  models.DomainSetting
		found bool
	)
	for _, s := range settings {
		d := NormalizeDomain(s.Domain)
		if d == "" {
			continue
		}
		if d == host {
			return s, true
		}
		if strings.HasSuffix(host, "."+d) && (!found || len(d) > len(NormalizeDomain(best.Domain))) {
			best, found = s, true
		}
	}
	return best, found
}
