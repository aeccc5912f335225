package entity

// Category groups formats by the streams they carry.
type Category string

const (
	CategoryVideoAudio Category = "video_audio"
	CategoryVideoOnly  Category = "video_only"
	CategoryAudioOnly  Category = "audio_only"
)

// Categories is the display order of format groups.
var Categories = []Category{CategoryVideoAudio, CategoryVideoOnly, CategoryAudioOnly}

const codecNone = "none"

// FormatDescriptor is one selectable encoding reported by the engine.
type FormatDescriptor struct {
	ID             string
	Ext            string
	Resolution     string
	Note           string
	FPS            float64
	VCodec         string
	ACodec         string
	FileSize       int64
	FileSizeApprox int64
	TBR            float64
	ABR            float64
}

func (f *FormatDescriptor) HasVideo() bool {
	return f.VCodec != "" && f.VCodec != codecNone
}

func (f *FormatDescriptor) HasAudio() bool {
	return f.ACodec != "" && f.ACodec != codecNone
}

// Size returns the exact size when known, the approximate one otherwise.
func (f *FormatDescriptor) Size() int64 {
	if f.FileSize > 0 {
		return f.FileSize
	}

	return f.FileSizeApprox
}

// SortKey is the quality proxy used to order a group.
func (f *FormatDescriptor) SortKey() float64 {
	if f.TBR > 0 {
		return f.TBR
	}

	return f.ABR
}

// FormatGroups maps a category to its ordered formats.
type FormatGroups map[Category][]FormatDescriptor

func (g FormatGroups) Total() int {
	n := 0
	for _, fmts := range g {
		n += len(fmts)
	}

	return n
}

// Find returns the descriptor with the given id and its category.
func (g FormatGroups) Find(id string) (*FormatDescriptor, Category, bool) {
	for _, cat := range Categories {
		for i := range g[cat] {
			if g[cat][i].ID == id {
				return &g[cat][i], cat, true
			}
		}
	}

	return nil, "", false
}

// MediaInfo is the probe result for a URL.
type MediaInfo struct {
	ID       string
	Title    string
	Duration float64
	Formats  []FormatDescriptor
}
