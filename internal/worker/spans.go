package worker

import (
	"sort"
	"time"

	"github.com/mobasher/mobasher/internal/models"
)

// Span merge defaults. On-screen tickers repeat the same text across many
// sampled frames; merging collapses them into one event per continuous
// display.
const (
	defaultTextSimThreshold = 0.60
	defaultIoUThreshold     = 0.30
	defaultMergeWindow      = 2 * time.Second
)

// OCRObservation is one OCR reading on a sampled frame.
type OCRObservation struct {
	Region     string
	Text       string
	BBox       models.IntArray // [x, y, width, height]
	Offset     float64         // seconds from segment start
	Confidence float64
	FontSize   float64
}

// OCRSpan is a run of similar observations in one screen region.
type OCRSpan struct {
	Region     string
	Text       string          // text of the highest-confidence frame
	BBox       models.IntArray // union of the merged frame boxes
	Start      float64
	End        float64
	Confidence float64
	FontSize   float64 // largest observed
	Frames     int
}

// SpanMerger folds frame-level OCR observations into display spans.
// Zero-valued thresholds fall back to the defaults.
type SpanMerger struct {
	TextSimThreshold float64
	IoUThreshold     float64
	Window           time.Duration
}

func (m SpanMerger) textSim() float64 {
	if m.TextSimThreshold > 0 {
		return m.TextSimThreshold
	}
	return defaultTextSimThreshold
}

func (m SpanMerger) iou() float64 {
	if m.IoUThreshold > 0 {
		return m.IoUThreshold
	}
	return defaultIoUThreshold
}

func (m SpanMerger) window() float64 {
	if m.Window > 0 {
		return m.Window.Seconds()
	}
	return defaultMergeWindow.Seconds()
}

// Merge folds observations into spans. An observation extends the open span
// of its region when the text is similar enough, the boxes overlap, and the
// time gap is inside the window; otherwise it opens a new span.
func (m SpanMerger) Merge(obs []OCRObservation) []OCRSpan {
	if len(obs) == 0 {
		return nil
	}
	sorted := make([]OCRObservation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	var spans []OCRSpan
	open := make(map[string]int) // region -> index into spans

	for _, o := range sorted {
		if i, ok := open[o.Region]; ok {
			s := &spans[i]
			if o.Offset-s.End <= m.window() &&
				TextSimilarity(s.Text, o.Text) >= m.textSim() &&
				BBoxIoU(s.BBox, o.BBox) >= m.iou() {
				s.End = o.Offset
				s.Frames++
				s.BBox = BBoxUnion(s.BBox, o.BBox)
				if o.FontSize > s.FontSize {
					s.FontSize = o.FontSize
				}
				if o.Confidence > s.Confidence {
					s.Confidence = o.Confidence
					s.Text = o.Text
				}
				continue
			}
		}
		spans = append(spans, OCRSpan{
			Region:     o.Region,
			Text:       o.Text,
			BBox:       o.BBox,
			Start:      o.Offset,
			End:        o.Offset,
			Confidence: o.Confidence,
			FontSize:   o.FontSize,
			Frames:     1,
		})
		open[o.Region] = len(spans) - 1
	}
	return spans
}

// TextSimilarity is a ratio in [0,1]: twice the longest common subsequence
// over the total rune count.
func TextSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	// Blank readings carry no signal; they never match anything,
	// including each other.
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	if a == b {
		return 1
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}

// BBoxUnion is the smallest [x, y, width, height] box covering both inputs.
// A malformed side yields the other unchanged.
func BBoxUnion(a, b models.IntArray) models.IntArray {
	if len(a) != 4 || a[2] <= 0 || a[3] <= 0 {
		return b
	}
	if len(b) != 4 || b[2] <= 0 || b[3] <= 0 {
		return a
	}
	x1 := min(a[0], b[0])
	y1 := min(a[1], b[1])
	x2 := max(a[0]+a[2], b[0]+b[2])
	y2 := max(a[1]+a[3], b[1]+b[3])
	return models.IntArray{x1, y1, x2 - x1, y2 - y1}
}

// BBoxIoU is intersection-over-union for [x, y, width, height] boxes.
// Malformed boxes score zero.
func BBoxIoU(a, b models.IntArray) float64 {
	if len(a) != 4 || len(b) != 4 || a[2] <= 0 || a[3] <= 0 || b[2] <= 0 || b[3] <= 0 {
		return 0
	}
	ax1, ay1, ax2, ay2 := a[0], a[1], a[0]+a[2], a[1]+a[3]
	bx1, by1, bx2, by2 := b[0], b[1], b[0]+b[2], b[1]+b[3]

	ix := min(ax2, bx2) - max(ax1, bx1)
	iy := min(ay2, by2) - max(ay1, by1)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := a[2]*a[3] + b[2]*b[3] - inter
	return float64(inter) / float64(union)
}
