// Package geometry is the boundary to the geometry analysis service. Pricing
// consumes a per-part Snapshot; how the snapshot was computed (mesh analysis,
// feature recognition) is the service's business.
package geometry

import "context"

// Snapshot is the geometric summary of a part used by pricing factors.
// Volumes are cm³, areas cm², lengths mm.
type Snapshot struct {
	PartVolumeCm3  float64        `json:"partVolumeCm3"`
	StockVolumeCm3 float64        `json:"stockVolumeCm3"`
	SurfaceAreaCm2 float64        `json:"surfaceAreaCm2"`
	BoundingBoxMm  [3]float64     `json:"boundingBoxMm"`
	FeatureCounts  map[string]int `json:"featureCounts,omitempty"`
	// Complexity is a [0,1] machining difficulty score.
	Complexity float64 `json:"complexity"`
}

// RemovedVolumeCm3 is the material removed from stock, floored at zero for
// snapshots with inconsistent volumes.
func (s *Snapshot) RemovedVolumeCm3() float64 {
	d := s.StockVolumeCm3 - s.PartVolumeCm3
	if d < 0 {
		return 0
	}
	return d
}

// Analyzer fetches the geometric snapshot for a part.
type Analyzer interface {
	Analyze(ctx context.Context, orgID, partID string) (*Snapshot, error)
}

// StaticAnalyzer returns a fixed snapshot for every part. Used in tests and
// when no geometry service is configured.
type StaticAnalyzer struct {
	Snapshot Snapshot
}

var _ Analyzer = (*StaticAnalyzer)(nil)

func (a *StaticAnalyzer) Analyze(ctx context.Context, orgID, partID string) (*Snapshot, error) {
	copied := a.Snapshot
	return &copied, nil
}
