// Package tumors compares detector output between two scans at the box
// level, without registration. Areas are normalized by image size so
// scans of different resolution can be compared, and tumors are paired
// across scans by nearest centroid.
package tumors

import (
	"image"

	"mrichange/internal/logger"
	"mrichange/internal/models"
	"mrichange/pkg/imageops"
	"mrichange/pkg/scanerr"
)

// Options controls filtering and matching.
type Options struct {
	// MinConfidence drops detections scoring below it
	MinConfidence float64

	// MatchDistance is the largest centroid distance, in image-normalized
	// units, at which a fixed and a moving tumor are treated as the same
	MatchDistance float64
}

// DefaultOptions returns a 0.5 confidence floor and a 0.25 match radius.
func DefaultOptions() Options {
	return Options{MinConfidence: 0.5, MatchDistance: 0.25}
}

// Tumor describes one detection in the pixel frame of its scan.
type Tumor struct {
	ID          int        `json:"id"`
	Box         [4]float64 `json:"box"`
	Center      [2]float64 `json:"center"`
	Area        float64    `json:"area"`
	AreaPercent float64    `json:"area_percent"`
	Confidence  float64    `json:"confidence"`
	Width       float64    `json:"width"`
	Height      float64    `json:"height"`
}

// ImageSize is a scan's pixel dimensions.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Scan lists the tumors kept from one scan.
type Scan struct {
	NumTumors        int       `json:"num_tumors"`
	ImageSize        ImageSize `json:"image_size"`
	TotalAreaPixels  float64   `json:"total_area_pixels"`
	TotalAreaPercent float64   `json:"total_area_percent"`
	Tumors           []Tumor   `json:"tumors"`
}

// Match pairs a fixed tumor with the moving tumor taken to be the same lesion.
type Match struct {
	FixedID           int     `json:"fixed_id"`
	MovingID          int     `json:"moving_id"`
	Distance          float64 `json:"distance"`
	AreaChangePixels  float64 `json:"area_change_pixels"`
	AreaPercentChange float64 `json:"area_percent_change"`
}

// Summary holds the cross-scan figures.
type Summary struct {
	AreaChangePixels        float64 `json:"area_change_pixels"`
	AreaChangePercentPixels float64 `json:"area_change_percent_pixels"`
	AreaPercentChange       float64 `json:"area_percent_change"`
	AreaGrowth              bool    `json:"area_growth"`
	AreaShrinkage           bool    `json:"area_shrinkage"`
	TumorCountChange        int     `json:"tumor_count_change"`
	NewTumorsDetected       int     `json:"new_tumors_detected"`
	NewTumors               []Tumor `json:"new_tumors"`
	ResolvedTumors          []Tumor `json:"resolved_tumors"`
	Matches                 []Match `json:"matches"`
}

// Comparison is the full box-level report.
type Comparison struct {
	FixedScan  Scan    `json:"fixed_scan"`
	MovingScan Scan    `json:"moving_scan"`
	Comparison Summary `json:"comparison"`
}

// Compare builds the report for two scans of the given pixel sizes. Growth
// and shrinkage follow the change in image-normalized area, so a tumor that
// only looks larger because the scan has more pixels is not reported as
// growing. Moving tumors left unmatched are new; unmatched fixed tumors are
// resolved.
func Compare(fixed, moving []models.Detection, fixedSize, movingSize image.Point, opts Options, log *logger.Logger) (*Comparison, error) {
	if fixedSize.X <= 0 || fixedSize.Y <= 0 || movingSize.X <= 0 || movingSize.Y <= 0 {
		return nil, scanerr.Shape("tumor comparison", "image sizes %v and %v must be positive", fixedSize, movingSize)
	}

	fixedScan := buildScan(fixed, fixedSize, opts.MinConfidence)
	movingScan := buildScan(moving, movingSize, opts.MinConfidence)
	log.Info("Tumor comparison: fixed %dx%d, moving %dx%d", fixedSize.X, fixedSize.Y, movingSize.X, movingSize.Y)

	change := movingScan.TotalAreaPixels - fixedScan.TotalAreaPixels
	changePercent := 0.0
	if fixedScan.TotalAreaPixels > 0 {
		changePercent = change / (fixedScan.TotalAreaPixels + imageops.Epsilon) * 100
	}
	percentChange := movingScan.TotalAreaPercent - fixedScan.TotalAreaPercent

	pairs := match(fixedScan, movingScan, opts.MatchDistance)

	summary := Summary{
		AreaChangePixels:        change,
		AreaChangePercentPixels: changePercent,
		AreaPercentChange:       percentChange,
		AreaGrowth:              percentChange > 0,
		AreaShrinkage:           percentChange < 0,
		TumorCountChange:        movingScan.NumTumors - fixedScan.NumTumors,
		NewTumors:               []Tumor{},
		ResolvedTumors:          []Tumor{},
		Matches:                 []Match{},
	}

	matchedFixed := make(map[int]bool)
	matchedMoving := make(map[int]bool)
	for _, p := range pairs {
		f, m := fixedScan.Tumors[p.fixed], movingScan.Tumors[p.moving]
		matchedFixed[p.fixed] = true
		matchedMoving[p.moving] = true
		summary.Matches = append(summary.Matches, Match{
			FixedID:           f.ID,
			MovingID:          m.ID,
			Distance:          p.distance,
			AreaChangePixels:  m.Area - f.Area,
			AreaPercentChange: m.AreaPercent - f.AreaPercent,
		})
	}
	for i, t := range movingScan.Tumors {
		if !matchedMoving[i] {
			summary.NewTumors = append(summary.NewTumors, t)
		}
	}
	for i, t := range fixedScan.Tumors {
		if !matchedFixed[i] {
			summary.ResolvedTumors = append(summary.ResolvedTumors, t)
		}
	}
	summary.NewTumorsDetected = len(summary.NewTumors)

	log.Info("Tumor comparison complete: %d -> %d tumors, %d matched, area change: %.2f%% (normalized)",
		fixedScan.NumTumors, movingScan.NumTumors, len(summary.Matches), percentChange)

	return &Comparison{FixedScan: fixedScan, MovingScan: movingScan, Comparison: summary}, nil
}

func buildScan(dets []models.Detection, size image.Point, minConfidence float64) Scan {
	total := float64(size.X * size.Y)
	scan := Scan{
		ImageSize: ImageSize{Width: size.X, Height: size.Y},
		Tumors:    []Tumor{},
	}
	for _, d := range dets {
		if d.Confidence < minConfidence {
			continue
		}
		b := d.Box
		cx, cy := b.Center()
		area := b.Area()
		scan.Tumors = append(scan.Tumors, Tumor{
			ID:          len(scan.Tumors) + 1,
			Box:         [4]float64{b.X1, b.Y1, b.X2, b.Y2},
			Center:      [2]float64{cx, cy},
			Area:        area,
			AreaPercent: area / total * 100,
			Confidence:  d.Confidence,
			Width:       b.X2 - b.X1,
			Height:      b.Y2 - b.Y1,
		})
		scan.TotalAreaPixels += area
	}
	scan.NumTumors = len(scan.Tumors)
	scan.TotalAreaPercent = scan.TotalAreaPixels / total * 100
	return scan
}
