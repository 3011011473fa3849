package face

// IoU calculates Intersection over Union between two bounding boxes.
// Used to pair detections of the same physical face across extraction
// passes, where detector order and count may differ.
func IoU(a, b Box) float64 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	areaA := a.Width() * a.Height()
	areaB := b.Width() * b.Height()
	union := areaA + areaB - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}
