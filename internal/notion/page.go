// Package notion reads pages and their block content from the Notion API.
package notion

import (
	"encoding/json"
	"fmt"
)

// UntitledPage is used whenever a page title cannot be read.
const UntitledPage = "Untitled"

// Page is a search result reduced to what a backup needs. Raw keeps the full
// object as Notion returned it.
type Page struct {
	ID             string
	Title          string
	ParentID       string
	ParentType     string
	URL            string
	LastEditedTime string
	Raw            json.RawMessage
}

type pageMeta struct {
	Object         string `json:"object"`
	ID             string `json:"id"`
	URL            string `json:"url"`
	LastEditedTime string `json:"last_edited_time"`
	Parent         struct {
		Type       string `json:"type"`
		PageID     string `json:"page_id"`
		DatabaseID string `json:"database_id"`
		BlockID    string `json:"block_id"`
	} `json:"parent"`
}

// ParsePage decodes one search result. Only a page nested under another page
// gets a ParentID; database, block and workspace parents leave it empty.
func ParsePage(raw json.RawMessage) (Page, error) {
	var meta pageMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Page{}, fmt.Errorf("decode page: %w", err)
	}
	if meta.ID == "" {
		return Page{}, fmt.Errorf("page has no id")
	}

	var generic map[string]any
	_ = json.Unmarshal(raw, &generic)

	return Page{
		ID:             meta.ID,
		Title:          ExtractTitle(generic),
		ParentID:       meta.Parent.PageID,
		ParentType:     meta.Parent.Type,
		URL:            meta.URL,
		LastEditedTime: meta.LastEditedTime,
		Raw:            raw,
	}, nil
}

// ExtractTitle reads a page title from its properties. It accepts a rich-text
// list under properties.title, the nested {"title": [...]} property form, or
// any property typed "title". Every other shape yields UntitledPage.
func ExtractTitle(page map[string]any) string {
	properties, ok := page["properties"].(map[string]any)
	if !ok {
		return UntitledPage
	}

	if titleInfo, ok := properties["title"]; ok {
		switch v := titleInfo.(type) {
		case []any:
			if title, ok := firstRichText(v); ok {
				return title
			}
			return UntitledPage
		case map[string]any:
			if list, ok := v["title"].([]any); ok {
				if title, ok := firstRichText(list); ok {
					return title
				}
			}
			return UntitledPage
		}
	}

	for _, prop := range properties {
		p, ok := prop.(map[string]any)
		if !ok || p["type"] != "title" {
			continue
		}
		if list, ok := p["title"].([]any); ok {
			if title, ok := firstRichText(list); ok {
				return title
			}
		}
	}

	return UntitledPage
}

func firstRichText(list []any) (string, bool) {
	if len(list) == 0 {
		return "", false
	}
	item, ok := list[0].(map[string]any)
	if !ok {
		return "", false
	}
	if text, ok := item["text"].(map[string]any); ok {
		if content, ok := text["content"].(string); ok {
			return content, true
		}
	}
	if plain, ok := item["plain_text"].(string); ok {
		return plain, true
	}
	return "", false
}
