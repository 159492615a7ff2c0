package services

import (
	"encoding/json"
	"strings"

	"pricewatch/models"
)

// SiteInput is a URL with an optional selector. In JSON it may be a bare string
// or an object {"url": ..., "selector": ...}.
type SiteInput struct {
	URL      string `json:"url"`
	Selector string `json:"selector,omitempty"`
}

func (s *SiteInput) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		*s = SiteInput{URL: raw}
		return nil
	}
	type plain SiteInput
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = SiteInput(p)
	return nil
}

func (s SiteInput) clean() SiteInput {
	return SiteInput{URL: strings.TrimSpace(s.URL), Selector: strings.TrimSpace(s.Selector)}
}

// CreateItemInput is the body of an item creation.
type CreateItemInput struct {
	Name string      `json:"name"`
	URLs []SiteInput `json:"urls"`
}

// UpdateItemInput patches an item. Nil fields are left untouched; an empty
// ImageURL clears it.
type UpdateItemInput struct {
	Name     *string      `json:"name"`
	Position *int         `json:"position"`
	ImageURL *string      `json:"imageUrl"`
	URLs     *[]SiteInput `json:"urls"`
}

// ProbeInput is a one-off extraction request.
type ProbeInput struct {
	URL      string             `json:"url"`
	Mode     models.ScraperMode `json:"mode"`
	Selector string             `json:"selector"`
}
