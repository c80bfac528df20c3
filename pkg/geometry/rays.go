package geometry

import "ctraysim/internal/models"

// Ray is a straight line from the source to one detector element.
type Ray struct {
	Source   models.Point
	Detector models.Point
}

// Length returns the Euclidean distance between the ray endpoints.
func (r Ray) Length() float64 {
	return r.Source.Distance(r.Detector)
}

// RaySet holds every ray of a scan, indexed [angle][detector]. It is built
// once per geometry and must be shared by the forward projector and the
// backprojector; projecting and backprojecting with different ray sets
// yields a geometrically inconsistent reconstruction.
type RaySet struct {
	geometry *ScannerGeometry
	rays     [][]Ray
}

// GenerateRays builds the ray set for a geometry. For every angle it emits
// one ray per detector, in detector index order.
func GenerateRays(g *ScannerGeometry) *RaySet {
	angles := g.Angles()
	rays := make([][]Ray, len(angles))
	for a, theta := range angles {
		source := g.SourcePosition(theta)
		detectors := g.DetectorPositions(theta)
		row := make([]Ray, len(detectors))
		for k, det := range detectors {
			row[k] = Ray{Source: source, Detector: det}
		}
		rays[a] = row
	}
	return &RaySet{geometry: g, rays: rays}
}

// Geometry returns the geometry the rays were generated from.
func (rs *RaySet) Geometry() *ScannerGeometry { return rs.geometry }

// NumAngles returns the number of projection angles.
func (rs *RaySet) NumAngles() int { return len(rs.rays) }

// NumDetectors returns the number of rays per angle.
func (rs *RaySet) NumDetectors() int {
	if len(rs.rays) == 0 {
		return 0
	}
	return len(rs.rays[0])
}

// Angle returns the rays of angle index a. The returned slice must not be
// modified.
func (rs *RaySet) Angle(a int) []Ray { return rs.rays[a] }

// Ray returns the ray for angle index a and detector k.
func (rs *RaySet) Ray(a, k int) Ray { return rs.rays[a][k] }
