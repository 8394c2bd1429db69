package tools

import "math"

// IPoint is an integer raster position
type IPoint struct {
	X, Y int
}

// RasterLine returns the points of the line from (x0,y0) to (x1,y1),
// both ends included
func RasterLine(x0, y0, x1, y1 int) []IPoint {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	pts := make([]IPoint, 0, max(dx, -dy)+1)
	err := dx + dy
	for {
		pts = append(pts, IPoint{x0, y0})
		if x0 == x1 && y0 == y1 {
			return pts
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
