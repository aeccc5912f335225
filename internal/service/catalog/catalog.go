// Package catalog turns raw engine formats into grouped, paginated menus.
package catalog

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jgivc/fetchbot/internal/bot/payload"
	"github.com/jgivc/fetchbot/internal/entity"
)

const (
	// BestSelector is offered on the first menu page.
	BestSelector = "bestvideo+bestaudio"

	// MessageLimit keeps a chunk under the platform message limit with room for markup.
	MessageLimit = 3900

	ruleWidth = 70
	kib       = 1024
)

var containerExts = map[string]struct{}{
	"mp4": {}, "webm": {}, "mkv": {}, "mov": {}, "avi": {}, "flv": {},
}

var sectionLabels = map[entity.Category]string{
	entity.CategoryVideoAudio: "🎬 Video + Audio",
	entity.CategoryVideoOnly:  "📹 Video Only",
	entity.CategoryAudioOnly:  "🎵 Audio Only",
}

const (
	labelBest     = "⭐ Best quality (" + BestSelector + ")"
	labelPrev     = "⬅️"
	labelNext     = "➡️"
	labelAll      = "📋 All formats"
	labelCancel   = "❌ Cancel"
	sectionFormat = "— %s —"
)

// Button is a transport-neutral inline button. Action is an encoded payload.
type Button struct {
	Text   string
	Action string
}

type Menu [][]Button

// Item is either a section header or a format in the flattened catalog.
type Item struct {
	Header string
	Format *entity.FormatDescriptor
}

// Classify puts a format into a category. Entries with no codec info but a
// video container extension count as video with audio.
func Classify(f entity.FormatDescriptor) (entity.Category, bool) {
	hasVideo, hasAudio := f.HasVideo(), f.HasAudio()

	switch {
	case hasVideo && hasAudio:
		return entity.CategoryVideoAudio, true
	case hasVideo:
		return entity.CategoryVideoOnly, true
	case hasAudio:
		return entity.CategoryAudioOnly, true
	}

	if _, ok := containerExts[strings.ToLower(f.Ext)]; ok {
		return entity.CategoryVideoAudio, true
	}

	return "", false
}

func BuildCatalog(raw []entity.FormatDescriptor) entity.FormatGroups {
	groups := make(entity.FormatGroups, len(entity.Categories))
	seen := make(map[string]struct{}, len(raw))

	for _, f := range raw {
		if f.ID == "" {
			continue
		}

		if _, ok := seen[f.ID]; ok {
			continue
		}

		cat, ok := Classify(f)
		if !ok {
			continue
		}

		seen[f.ID] = struct{}{}
		groups[cat] = append(groups[cat], f)
	}

	for cat := range groups {
		slices.SortStableFunc(groups[cat], func(a, b entity.FormatDescriptor) int {
			return cmp.Compare(b.SortKey(), a.SortKey())
		})
	}

	return groups
}

// Flatten lays the groups out in display order with a header before each non-empty group.
func Flatten(groups entity.FormatGroups) []Item {
	var items []Item

	for _, cat := range entity.Categories {
		fmts := groups[cat]
		if len(fmts) == 0 {
			continue
		}

		items = append(items, Item{Header: sectionLabels[cat]})
		for i := range fmts {
			items = append(items, Item{Format: &fmts[i]})
		}
	}

	return items
}

// PageCount returns the number of menu pages, at least one.
func PageCount(groups entity.FormatGroups, pageSize int) int {
	n := len(Flatten(groups))
	if n == 0 || pageSize <= 0 {
		return 1
	}

	return (n + pageSize - 1) / pageSize
}

func BuildMenu(sessionID string, groups entity.FormatGroups, page, pageSize int) Menu {
	if pageSize <= 0 {
		pageSize = 1
	}

	items := Flatten(groups)
	pages := PageCount(groups, pageSize)
	page = max(0, min(page, pages-1))

	var rows Menu

	if page == 0 {
		rows = append(rows, []Button{{
			Text:   labelBest,
			Action: payload.MustEncode(payload.FormatChosen{SID: sessionID, Format: BestSelector}),
		}})
	}

	start := page * pageSize
	end := min(start+pageSize, len(items))

	for _, it := range items[start:end] {
		if it.Format == nil {
			rows = append(rows, []Button{{
				Text:   fmt.Sprintf(sectionFormat, it.Header),
				Action: payload.MustEncode(payload.Noop{}),
			}})

			continue
		}

		action, err := payload.Encode(payload.FormatChosen{SID: sessionID, Format: it.Format.ID})
		if err != nil {
			continue
		}

		rows = append(rows, []Button{{Text: ButtonLabel(*it.Format), Action: action}})
	}

	var nav []Button
	if page > 0 {
		nav = append(nav, Button{Text: labelPrev, Action: payload.MustEncode(payload.Page{SID: sessionID, Page: page - 1})})
	}

	if page < pages-1 {
		nav = append(nav, Button{Text: labelNext, Action: payload.MustEncode(payload.Page{SID: sessionID, Page: page + 1})})
	}

	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	rows = append(rows, []Button{
		{Text: labelAll, Action: payload.MustEncode(payload.ShowAllFormats{SID: sessionID})},
		{Text: labelCancel, Action: payload.MustEncode(payload.Cancel{SID: sessionID})},
	})

	return rows
}

// ButtonLabel renders "EXT | res | 60fps | 12.3MB". Frame rate shows only above 30.
func ButtonLabel(f entity.FormatDescriptor) string {
	ext := f.Ext
	if ext == "" {
		ext = "?"
	}

	parts := []string{strings.ToUpper(ext)}

	if res := resolution(f); res != "" {
		parts = append(parts, res)
	}

	if f.FPS > 30 {
		parts = append(parts, strconv.FormatFloat(f.FPS, 'f', -1, 64)+"fps")
	}

	parts = append(parts, HumanSize(f.Size()))

	return strings.Join(parts, " | ")
}

func resolution(f entity.FormatDescriptor) string {
	if f.Resolution != "" {
		return f.Resolution
	}

	return f.Note
}

func HumanSize(n int64) string {
	switch {
	case n <= 0:
		return "?"
	case n < kib:
		return strconv.FormatInt(n, 10) + "B"
	case n < kib*kib:
		return fmt.Sprintf("%.0fKB", float64(n)/kib)
	case n < kib*kib*kib:
		return fmt.Sprintf("%.1fMB", float64(n)/(kib*kib))
	}

	return fmt.Sprintf("%.2fGB", float64(n)/(kib*kib*kib))
}

// BuildDiagnosticTable renders every raw format as a fixed-width table.
func BuildDiagnosticTable(raw []entity.FormatDescriptor) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%-6s%-6s%-12s%-5s%-10s%-8s%-9s%s\n", "ID", "EXT", "RES", "FPS", "VCODEC", "ACODEC", "SIZE", "NOTE")
	b.WriteString(strings.Repeat("─", ruleWidth))

	for _, f := range raw {
		res := resolution(f)
		if res == "" {
			res = "?"
		}

		fps := ""
		if f.FPS > 0 {
			fps = strconv.Itoa(int(f.FPS))
		}

		fmt.Fprintf(&b, "\n%-6s%-6s%-12s%-5s%-10s%-8s%-9s%s",
			orUnknown(f.ID), orUnknown(f.Ext), res, fps,
			shortCodec(f.VCodec, 8), shortCodec(f.ACodec, 6), HumanSize(f.Size()), f.Note)
	}

	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}

	return s
}

func shortCodec(codec string, width int) string {
	if codec == "" || codec == "none" {
		return "-"
	}

	codec, _, _ = strings.Cut(codec, ".")
	if len(codec) > width {
		codec = codec[:width]
	}

	return codec
}

// ChunkLines splits text on line boundaries so that no chunk exceeds limit
// characters. Joining the chunks with "\n" yields text again unless a single
// line is longer than limit, in which case that line is hard-split.
func ChunkLines(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		cur    []string
		size   int
	)

	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, "\n"))
			cur, size = cur[:0], 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		r := []rune(line)

		if len(r) > limit {
			flush()

			for len(r) > limit {
				chunks = append(chunks, string(r[:limit]))
				r = r[limit:]
			}
		}

		n := len(r)
		if len(cur) > 0 && size+1+n > limit {
			flush()
		}

		if len(cur) > 0 {
			size++
		}

		cur = append(cur, string(r))
		size += n
	}

	flush()

	return chunks
}
